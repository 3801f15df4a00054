package catalog

import (
	"errors"
	"testing"

	"github.com/franz/catstats/internal/analytics"
	"github.com/franz/catstats/internal/marc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRow(text string) analytics.Row {
	return analytics.Row{
		"MMS Id":         "9912345",
		"Local Param 02": text,
		"Language Code":  "eng",
		"Place Code":     "cau",
		"Material Type":  "Book",
		"Resource Type":  "Book - Physical",
	}
}

func TestNormalizeNonRepeatable(t *testing.T) {
	n := NewNormalizer(Columns{}, MultiValue)

	rec, err := n.Normalize(0, sampleRow("962 $$a ethno $$b jdoe $$c 20210115 $$d 3 $$g corr"))
	require.NoError(t, err)

	assert.Equal(t, "9912345", rec.Bib.MMSID)
	assert.Equal(t, "eng", rec.Bib.LanguageCode)
	assert.Equal(t, "cau", rec.Bib.PlaceCode)
	assert.Equal(t, "Book", rec.Bib.MaterialType)
	assert.Equal(t, "Book - Physical", rec.Bib.ResourceType)

	require.Len(t, rec.Fields, 1)
	fg := rec.Fields[0]
	assert.Equal(t, "9912345", fg.MMSID)
	assert.Equal(t, "ethno", fg.CatCenter)
	assert.Equal(t, "jdoe", fg.Cataloger)
	assert.Equal(t, "202101", fg.YearMonth)
	assert.Equal(t, "3", fg.Difficulty)
	assert.Equal(t, "corr", fg.MaintInfo)
	assert.Empty(t, fg.Repeatables)
}

func TestYearMonth(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"20210115", "202101"},
		{"202101", "202101"},
		{"2021", "2021"},
		{"", ""},
		{"202101151200", "202101"},
	}

	for _, tt := range tests {
		if got := YearMonth(tt.in); got != tt.want {
			t.Errorf("YearMonth(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeRepeatablePolicies(t *testing.T) {
	text := "962 $$a clk $$k foo $$k bar $$h pcc $$i naco1"

	t.Run("multi", func(t *testing.T) {
		rec, err := NewNormalizer(Columns{}, MultiValue).Normalize(0, sampleRow(text))
		require.NoError(t, err)
		require.Len(t, rec.Fields, 1)

		fg := rec.Fields[0]
		assert.Equal(t, []RepeatableValue{
			{Code: "h", Value: "pcc"},
			{Code: "i", Value: "naco1"},
			{Code: "k", Value: "foo"},
			{Code: "k", Value: "bar"},
		}, fg.Repeatables)
		assert.Empty(t, fg.Project)
		assert.Equal(t, []string{"foo", "bar"}, fg.RepeatableValues("k"))
	})

	t.Run("joined", func(t *testing.T) {
		rec, err := NewNormalizer(Columns{}, CommaJoinedSingleValue).Normalize(0, sampleRow(text))
		require.NoError(t, err)
		require.Len(t, rec.Fields, 1)

		fg := rec.Fields[0]
		assert.Equal(t, "foo, bar", fg.Project)
		assert.Equal(t, "pcc", fg.NationalInfo)
		assert.Equal(t, "naco1", fg.NacoInfo)
		assert.Empty(t, fg.SacoInfo)
		assert.Empty(t, fg.Repeatables)
		assert.Equal(t, []string{"foo", "bar"}, fg.RepeatableValues("k"))
	})
}

func TestNormalizeMultipleGroups(t *testing.T) {
	n := NewNormalizer(Columns{}, MultiValue)

	rec, err := n.Normalize(0, sampleRow("962 $$a clk $$b amy $$c 202103; 962 $$a law $$b bob $$c 20210402"))
	require.NoError(t, err)
	require.Len(t, rec.Fields, 2)

	assert.Equal(t, "clk", rec.Fields[0].CatCenter)
	assert.Equal(t, "202103", rec.Fields[0].YearMonth)
	assert.Equal(t, "law", rec.Fields[1].CatCenter)
	assert.Equal(t, "202104", rec.Fields[1].YearMonth)
}

func TestNormalizeEmptyFieldText(t *testing.T) {
	n := NewNormalizer(Columns{}, MultiValue)

	rec, err := n.Normalize(0, sampleRow(""))
	require.NoError(t, err)
	assert.Equal(t, "9912345", rec.Bib.MMSID)
	assert.Empty(t, rec.Fields)
}

func TestNormalizeMissingFieldText(t *testing.T) {
	n := NewNormalizer(Columns{}, MultiValue)

	row := sampleRow("")
	delete(row, "Local Param 02")

	_, err := n.Normalize(7, row)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingFieldText))

	var rowErr *RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 7, rowErr.Index)
	assert.Equal(t, "9912345", rowErr.MMSID)
	assert.Contains(t, err.Error(), "row 7")
}

func TestNormalizeMissingIdentifier(t *testing.T) {
	n := NewNormalizer(Columns{}, MultiValue)

	row := sampleRow("962 $$a clk")
	row["MMS Id"] = ""

	_, err := n.Normalize(2, row)
	assert.True(t, errors.Is(err, ErrMissingIdentifier))
}

func TestNormalizeMissingBibAttributes(t *testing.T) {
	n := NewNormalizer(Columns{}, MultiValue)

	rec, err := n.Normalize(0, analytics.Row{
		"MMS Id":         "99",
		"Local Param 02": "962 $$a clk",
	})
	require.NoError(t, err)
	assert.Empty(t, rec.Bib.LanguageCode)
	assert.Empty(t, rec.Bib.ResourceType)
}

func TestNormalizeCustomColumns(t *testing.T) {
	n := NewNormalizer(Columns{FieldText: "962 Field", MMSID: "Id"}, MultiValue)

	rec, err := n.Normalize(0, analytics.Row{
		"Id":            "42",
		"962 Field":     "962 $$a law",
		"Language Code": "spa",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", rec.Bib.MMSID)
	assert.Equal(t, "spa", rec.Bib.LanguageCode)
	assert.Equal(t, "law", rec.Fields[0].CatCenter)
}

func TestNormalizeGroupsPreparsed(t *testing.T) {
	n := NewNormalizer(Columns{}, CommaJoinedSingleValue)
	groups := marc.Parse("962 $$a iml $$h one $$h two", marc.MultiValue)

	rec, err := n.NormalizeGroups(0, sampleRow("ignored"), groups)
	require.NoError(t, err)
	assert.Equal(t, "one, two", rec.Fields[0].NationalInfo)
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    AggregationPolicy
		wantErr bool
	}{
		{"", MultiValue, false},
		{"multi", MultiValue, false},
		{"Joined", CommaJoinedSingleValue, false},
		{"comma-joined", CommaJoinedSingleValue, false},
		{"bogus", MultiValue, true},
	}

	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	assert.Equal(t, "multi", MultiValue.String())
	assert.Equal(t, "joined", CommaJoinedSingleValue.String())
}

func TestIsRepeatable(t *testing.T) {
	for _, c := range []string{"h", "i", "j", "k"} {
		assert.True(t, IsRepeatable(c), c)
	}
	for _, c := range []string{"a", "b", "c", "d", "g", "z"} {
		assert.False(t, IsRepeatable(c), c)
	}
}

func TestRepeatableValuesJoined(t *testing.T) {
	fg := FieldGroup{Project: "solo", NacoInfo: "a, , b"}

	assert.Equal(t, []string{"solo"}, fg.RepeatableValues(CodeProject))
	assert.Equal(t, []string{"a", "", "b"}, fg.RepeatableValues(CodeNacoInfo))
	assert.Nil(t, fg.RepeatableValues(CodeSacoInfo))
}
