// Package marc decodes the packed 962-field microformat delivered by the
// analytics report: a ';'-separated list of field groups, each a "$$"-marked
// list of one-letter subfield codes followed by a space and a value.
//
//	$$a clk$$b jsd$$c 20210115$$d 2+; $$a rams$$b abc$$h pcc$$h conser
//
// There is no escaping: a literal ';' or "$$" inside a value cannot be told
// apart from a delimiter.
package marc

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// FieldSeparator separates field groups within one report value
	FieldSeparator = ";"

	// SubfieldMarker precedes every subfield code
	SubfieldMarker = "$$"
)

// Policy controls how repeated codes within one group are aggregated
type Policy int

const (
	// MultiValue keeps every value of a repeated code, in order
	MultiValue Policy = iota

	// SingleValue keeps only the last value of a repeated code
	SingleValue
)

func (p Policy) String() string {
	switch p {
	case MultiValue:
		return "multi"
	case SingleValue:
		return "single"
	default:
		return "unknown"
	}
}

// Subfields maps a subfield code to its ordered values
type Subfields map[string][]string

// Has reports whether the code occurred at all
func (s Subfields) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Values returns all values for code, or nil
func (s Subfields) Values(code string) []string {
	return s[code]
}

// First returns the first value for code, or "" when absent
func (s Subfields) First(code string) string {
	if v := s[code]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Last returns the last value for code, or "" when absent
func (s Subfields) Last(code string) string {
	if v := s[code]; len(v) > 0 {
		return v[len(v)-1]
	}
	return ""
}

// Joined returns all values for code joined with sep
func (s Subfields) Joined(code, sep string) string {
	return strings.Join(s[code], sep)
}

// Codes returns the codes present, sorted
func (s Subfields) Codes() []string {
	codes := make([]string, 0, len(s))
	for code := range s {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Parse decodes a field string into one Subfields per non-empty group
func Parse(text string, policy Policy) []Subfields {
	var groups []Subfields

	for _, segment := range strings.Split(text, FieldSeparator) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		groups = append(groups, ParseGroup(segment, policy))
	}

	return groups
}

// ParseGroup decodes a single "$$a x$$b y" group.
// Anything before the first marker is discarded.
func ParseGroup(group string, policy Policy) Subfields {
	sf := make(Subfields)

	pieces := strings.Split(group, SubfieldMarker)
	for _, piece := range pieces[1:] {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}

		code, value, _ := strings.Cut(piece, " ")
		value = norm.NFC.String(value)

		if policy == SingleValue {
			sf[code] = []string{value}
		} else {
			sf[code] = append(sf[code], value)
		}
	}

	return sf
}

// Format renders groups back into the packed form. Codes are written in
// the given order first, then any remaining codes alphabetically.
func Format(groups []Subfields, order []string) string {
	parts := make([]string, 0, len(groups))

	for _, sf := range groups {
		var b strings.Builder
		seen := make(map[string]bool, len(sf))

		write := func(code string) {
			if seen[code] {
				return
			}
			seen[code] = true
			for _, v := range sf[code] {
				b.WriteString(SubfieldMarker)
				b.WriteString(code)
				b.WriteString(" ")
				b.WriteString(v)
			}
		}

		for _, code := range order {
			if sf.Has(code) {
				write(code)
			}
		}
		for _, code := range sf.Codes() {
			write(code)
		}
		parts = append(parts, b.String())
	}

	return strings.Join(parts, FieldSeparator+" ")
}
