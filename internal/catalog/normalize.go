package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/franz/catstats/internal/analytics"
	"github.com/franz/catstats/internal/marc"
)

var (
	// ErrMissingFieldText means the row has no 962 field-text column at all
	ErrMissingFieldText = errors.New("row has no field-text column")

	// ErrMissingIdentifier means the row has no MMS Id
	ErrMissingIdentifier = errors.New("row has no bibliographic identifier")
)

// RowError reports a row that could not be normalized
type RowError struct {
	Index int
	MMSID string
	Err   error
}

func (e *RowError) Error() string {
	if e.MMSID != "" {
		return fmt.Sprintf("row %d (MMS Id %s): %v", e.Index, e.MMSID, e.Err)
	}
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Normalizer maps report rows onto records
type Normalizer struct {
	cols   Columns
	policy AggregationPolicy
}

// NewNormalizer creates a normalizer for the given columns and policy
func NewNormalizer(cols Columns, policy AggregationPolicy) *Normalizer {
	return &Normalizer{
		cols:   cols.withDefaults(),
		policy: policy,
	}
}

// Policy returns the aggregation policy in use
func (n *Normalizer) Policy() AggregationPolicy {
	return n.policy
}

// Columns returns the column names in use
func (n *Normalizer) Columns() Columns {
	return n.cols
}

// FieldText returns the packed 962 text of a row
func (n *Normalizer) FieldText(row analytics.Row) (string, bool) {
	text, ok := row[n.cols.FieldText]
	return text, ok
}

// Normalize decodes the row's field text and builds its record
func (n *Normalizer) Normalize(index int, row analytics.Row) (*Record, error) {
	text, ok := n.FieldText(row)
	if !ok {
		return nil, &RowError{Index: index, MMSID: row[n.cols.MMSID], Err: ErrMissingFieldText}
	}
	return n.NormalizeGroups(index, row, marc.Parse(text, marc.MultiValue))
}

// NormalizeGroups builds a record from a row and its already decoded groups.
// Groups must have been parsed with marc.MultiValue for repeatable
// subfields to keep every occurrence.
func (n *Normalizer) NormalizeGroups(index int, row analytics.Row, groups []marc.Subfields) (*Record, error) {
	mmsid := row[n.cols.MMSID]
	if mmsid == "" {
		return nil, &RowError{Index: index, Err: ErrMissingIdentifier}
	}
	if _, ok := row[n.cols.FieldText]; !ok {
		return nil, &RowError{Index: index, MMSID: mmsid, Err: ErrMissingFieldText}
	}

	rec := &Record{
		Bib: BibRecord{
			MMSID:        mmsid,
			LanguageCode: row[n.cols.Language],
			PlaceCode:    row[n.cols.Place],
			MaterialType: row[n.cols.Material],
			ResourceType: row[n.cols.Resource],
		},
		Fields: make([]FieldGroup, 0, len(groups)),
	}

	for _, sf := range groups {
		rec.Fields = append(rec.Fields, n.fieldGroup(mmsid, sf))
	}

	return rec, nil
}

func (n *Normalizer) fieldGroup(mmsid string, sf marc.Subfields) FieldGroup {
	fg := FieldGroup{
		MMSID:      mmsid,
		CatCenter:  sf.First(CodeCatCenter),
		Cataloger:  sf.First(CodeCataloger),
		YearMonth:  YearMonth(sf.First(CodeYearMonth)),
		Difficulty: sf.First(CodeDifficulty),
		MaintInfo:  sf.First(CodeMaintInfo),
	}

	switch n.policy {
	case CommaJoinedSingleValue:
		fg.NationalInfo = sf.Joined(CodeNationalInfo, JoinSeparator)
		fg.NacoInfo = sf.Joined(CodeNacoInfo, JoinSeparator)
		fg.SacoInfo = sf.Joined(CodeSacoInfo, JoinSeparator)
		fg.Project = sf.Joined(CodeProject, JoinSeparator)
	default:
		for _, code := range RepeatableCodes {
			for _, v := range sf.Values(code) {
				fg.Repeatables = append(fg.Repeatables, RepeatableValue{Code: code, Value: v})
			}
		}
	}

	return fg
}

// YearMonth keeps the yyyymm prefix of a 962 $c value (usually yyyymmdd)
func YearMonth(s string) string {
	r := []rune(s)
	if len(r) > 6 {
		return string(r[:6])
	}
	return s
}

// RepeatableValues returns the values stored for code, whichever policy
// produced the field group
func (fg FieldGroup) RepeatableValues(code string) []string {
	var out []string
	for _, rv := range fg.Repeatables {
		if rv.Code == code {
			out = append(out, rv.Value)
		}
	}
	if len(out) > 0 {
		return out
	}

	var joined string
	switch code {
	case CodeNationalInfo:
		joined = fg.NationalInfo
	case CodeNacoInfo:
		joined = fg.NacoInfo
	case CodeSacoInfo:
		joined = fg.SacoInfo
	case CodeProject:
		joined = fg.Project
	}
	if joined == "" {
		return nil
	}
	return strings.Split(joined, JoinSeparator)
}
