package marc

import (
	"reflect"
	"testing"
)

func TestParse_SingleGroup(t *testing.T) {
	input := "$$a clk$$b jsd$$c 202101$$d 2+"

	tests := []struct {
		name   string
		policy Policy
		want   Subfields
	}{
		{
			name:   "multi-value",
			policy: MultiValue,
			want: Subfields{
				"a": {"clk"},
				"b": {"jsd"},
				"c": {"202101"},
				"d": {"2+"},
			},
		},
		{
			name:   "single-value",
			policy: SingleValue,
			want: Subfields{
				"a": {"clk"},
				"b": {"jsd"},
				"c": {"202101"},
				"d": {"2+"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := Parse(input, tt.policy)
			if len(groups) != 1 {
				t.Fatalf("expected 1 group, got %d", len(groups))
			}
			if !reflect.DeepEqual(groups[0], tt.want) {
				t.Errorf("Parse() = %v, want %v", groups[0], tt.want)
			}
			if got := groups[0].Last("a"); got != "clk" {
				t.Errorf("Last(a) = %q, want clk", got)
			}
		})
	}
}

func TestParse_MultipleGroups(t *testing.T) {
	groups := Parse("$$a x$$b y; $$a z$$b w", MultiValue)

	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	want := []Subfields{
		{"a": {"x"}, "b": {"y"}},
		{"a": {"z"}, "b": {"w"}},
	}
	if !reflect.DeepEqual(groups, want) {
		t.Errorf("Parse() = %v, want %v", groups, want)
	}
}

func TestParse_RepeatedCodes(t *testing.T) {
	input := "$$a rams$$h foo$$h bar"

	multi := Parse(input, MultiValue)
	if got := multi[0].Values("h"); !reflect.DeepEqual(got, []string{"foo", "bar"}) {
		t.Errorf("multi-value h = %v, want [foo bar]", got)
	}
	if got := multi[0].Joined("h", ", "); got != "foo, bar" {
		t.Errorf("Joined(h) = %q, want %q", got, "foo, bar")
	}

	single := Parse(input, SingleValue)
	if got := single[0].Values("h"); !reflect.DeepEqual(got, []string{"bar"}) {
		t.Errorf("single-value h = %v, want [bar]", got)
	}
}

func TestParse_EdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Subfields
	}{
		{
			name:  "empty string",
			input: "",
			want:  nil,
		},
		{
			name:  "whitespace-only segments",
			input: " ;  ; ",
			want:  nil,
		},
		{
			name:  "trailing separator",
			input: "$$a clk;",
			want:  []Subfields{{"a": {"clk"}}},
		},
		{
			name:  "code without value",
			input: "$$a clk$$d$$g ",
			want:  []Subfields{{"a": {"clk"}, "d": {""}, "g": {""}}},
		},
		{
			name:  "text before first marker discarded",
			input: "962 $$a eal",
			want:  []Subfields{{"a": {"eal"}}},
		},
		{
			name:  "value split on first space only",
			input: "$$g bib record update",
			want:  []Subfields{{"g": {"bib record update"}}},
		},
		{
			name:  "empty marker pieces ignored",
			input: "$$$$a law",
			want:  []Subfields{{"a": {"law"}}},
		},
		{
			name:  "group without markers",
			input: "no markers here",
			want:  []Subfields{{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input, MultiValue)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse_NormalizesToNFC(t *testing.T) {
	// "e" + combining acute accent
	groups := Parse("$$b Jose\u0301", MultiValue)
	if got := groups[0].First("b"); got != "Jos\u00e9" {
		t.Errorf("expected NFC-normalized value, got %q", got)
	}
}

func TestSubfields_Accessors(t *testing.T) {
	sf := Subfields{"k": {"one", "two"}}

	if sf.First("k") != "one" || sf.Last("k") != "two" {
		t.Errorf("First/Last mismatch: %q/%q", sf.First("k"), sf.Last("k"))
	}
	if sf.First("z") != "" || sf.Last("z") != "" {
		t.Error("missing code should yield empty string")
	}
	if sf.Has("z") {
		t.Error("Has(z) should be false")
	}
	if !reflect.DeepEqual(sf.Codes(), []string{"k"}) {
		t.Errorf("Codes() = %v", sf.Codes())
	}
}

func TestFormat_RoundTrip(t *testing.T) {
	input := "$$a clk$$b jsd$$c 202101$$d 2+; $$a rams$$h foo$$h bar"
	order := []string{"a", "b", "c", "d"}

	groups := Parse(input, MultiValue)
	out := Format(groups, order)
	if out != input {
		t.Errorf("Format() = %q, want %q", out, input)
	}

	again := Parse(out, MultiValue)
	if !reflect.DeepEqual(groups, again) {
		t.Errorf("round trip mismatch: %v vs %v", groups, again)
	}
}
