// Package catalog turns decoded report rows into the normalized
// bibliographic / field-group / repeatable-subfield records that are stored.
package catalog

import (
	"fmt"
	"strings"
)

// BibRecord is one bibliographic record, unique by MMS Id
type BibRecord struct {
	ID           int64
	MMSID        string
	LanguageCode string
	PlaceCode    string
	MaterialType string
	ResourceType string
}

// FieldGroup is one decoded 962 field, owned by exactly one BibRecord.
// Non-repeatable subfields map 1:1 onto attributes; absent ones are "".
type FieldGroup struct {
	ID         int64
	BibID      int64
	MMSID      string
	CatCenter  string // $a
	Cataloger  string // $b
	YearMonth  string // $c, first 6 characters
	Difficulty string // $d
	MaintInfo  string // $g

	// Comma-joined repeatable subfields ($h $i $j $k). Only populated
	// under CommaJoinedSingleValue.
	NationalInfo string
	NacoInfo     string
	SacoInfo     string
	Project      string

	// Repeatables holds $h $i $j $k values, one per occurrence.
	// Only populated under MultiValue.
	Repeatables []RepeatableValue
}

// RepeatableValue is one occurrence of a repeatable subfield
type RepeatableValue struct {
	Code  string
	Value string
}

// Record is one normalized source row
type Record struct {
	Bib    BibRecord
	Fields []FieldGroup
}

// Subfield codes of the 962 field
const (
	CodeCatCenter    = "a"
	CodeCataloger    = "b"
	CodeYearMonth    = "c"
	CodeDifficulty   = "d"
	CodeMaintInfo    = "g"
	CodeNationalInfo = "h"
	CodeNacoInfo     = "i"
	CodeSacoInfo     = "j"
	CodeProject      = "k"
)

// RepeatableCodes are the subfields that may occur more than once per field
var RepeatableCodes = []string{CodeNationalInfo, CodeNacoInfo, CodeSacoInfo, CodeProject}

// IsRepeatable reports whether code is a repeatable subfield
func IsRepeatable(code string) bool {
	for _, c := range RepeatableCodes {
		if c == code {
			return true
		}
	}
	return false
}

// JoinSeparator joins repeated values under CommaJoinedSingleValue
const JoinSeparator = ", "

// AggregationPolicy selects how repeatable subfields are stored
type AggregationPolicy int

const (
	// MultiValue stores each repeatable occurrence as its own child row
	MultiValue AggregationPolicy = iota

	// CommaJoinedSingleValue collapses each repeatable code into one
	// comma-joined column on the field group
	CommaJoinedSingleValue
)

func (p AggregationPolicy) String() string {
	switch p {
	case MultiValue:
		return "multi"
	case CommaJoinedSingleValue:
		return "joined"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses a configured policy name
func ParsePolicy(s string) (AggregationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "multi", "multi-value", "multivalue":
		return MultiValue, nil
	case "joined", "comma", "comma-joined", "single":
		return CommaJoinedSingleValue, nil
	default:
		return MultiValue, fmt.Errorf("unknown aggregation policy %q (use multi or joined)", s)
	}
}

// Columns names the report columns the normalizer reads
type Columns struct {
	MMSID     string `mapstructure:"mmsid"`
	FieldText string `mapstructure:"field_text"`
	Language  string `mapstructure:"language"`
	Place     string `mapstructure:"place"`
	Material  string `mapstructure:"material"`
	Resource  string `mapstructure:"resource"`
}

// DefaultColumns returns the headings used by the cataloging statistics report
func DefaultColumns() Columns {
	return Columns{
		MMSID:     "MMS Id",
		FieldText: "Local Param 02",
		Language:  "Language Code",
		Place:     "Place Code",
		Material:  "Material Type",
		Resource:  "Resource Type",
	}
}

// withDefaults fills unset column names
func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	if c.MMSID == "" {
		c.MMSID = d.MMSID
	}
	if c.FieldText == "" {
		c.FieldText = d.FieldText
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.Place == "" {
		c.Place = d.Place
	}
	if c.Material == "" {
		c.Material = d.Material
	}
	if c.Resource == "" {
		c.Resource = d.Resource
	}
	return c
}
