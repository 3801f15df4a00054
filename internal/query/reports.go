package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/franz/catstats/internal/catalog"
	"github.com/franz/catstats/internal/store"
)

// Result kinds
const (
	KindCrosstab = "crosstab"
	KindSummary  = "summary"
)

// CrosstabRow is one labelled row of counts
type CrosstabRow struct {
	Label  string `json:"label"`
	Counts []int  `json:"counts"`
	Total  int    `json:"total"`
}

// Crosstab counts records by row label and column label. Labels are
// sorted and rows whose total is zero are left out.
type Crosstab struct {
	Headers []string      `json:"headers"`
	Rows    []CrosstabRow `json:"rows"`
	Totals  CrosstabRow   `json:"totals"`
}

// SummaryRow is one value with its count
type SummaryRow struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Summary counts occurrences of single values, most frequent first
type Summary struct {
	Headers []string     `json:"headers"`
	Rows    []SummaryRow `json:"rows"`
}

// Result is one computed report
type Result struct {
	Report   ReportInfo `json:"report"`
	Filter   Filter     `json:"filter"`
	Start    string     `json:"start"`
	End      string     `json:"end"`
	Kind     string     `json:"kind"`
	Crosstab *Crosstab  `json:"crosstab,omitempty"`
	Summary  *Summary   `json:"summary,omitempty"`
}

// Table flattens the result into headers and string cells
func (r *Result) Table() ([]string, [][]string) {
	switch r.Kind {
	case KindCrosstab:
		return r.Crosstab.Table()
	default:
		return r.Summary.Table()
	}
}

// Table flattens the crosstab, totals row last
func (c *Crosstab) Table() ([]string, [][]string) {
	var rows [][]string
	for _, row := range append(append([]CrosstabRow(nil), c.Rows...), c.Totals) {
		cells := []string{row.Label}
		for _, n := range row.Counts {
			cells = append(cells, strconv.Itoa(n))
		}
		cells = append(cells, strconv.Itoa(row.Total))
		rows = append(rows, cells)
	}
	return c.Headers, rows
}

// Table flattens the summary
func (s *Summary) Table() ([]string, [][]string) {
	rows := make([][]string, 0, len(s.Rows))
	for _, row := range s.Rows {
		rows = append(rows, []string{row.Value, strconv.Itoa(row.Count)})
	}
	return s.Headers, rows
}

// Source returns stored field groups for a selection. *store.Store
// implements it.
type Source interface {
	SelectFieldGroups(ctx context.Context, sel store.Selection) ([]store.FieldGroupView, error)
}

// Runner computes reports over a Source
type Runner struct {
	source       Source
	difficulties DifficultySets
}

// NewRunner creates a report runner. A nil difficulties map uses the
// built-in sets.
func NewRunner(source Source, difficulties DifficultySets) *Runner {
	if difficulties == nil {
		difficulties = DefaultDifficultySets()
	}
	return &Runner{source: source, difficulties: difficulties}
}

// Difficulties returns the difficulty sets in use
func (r *Runner) Difficulties() DifficultySets {
	return r.difficulties
}

// Run validates the filter and computes its report
func (r *Runner) Run(ctx context.Context, f Filter) (*Result, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	info, _ := LookupReport(f.Report)
	start, end := f.Range()

	views, err := r.source.SelectFieldGroups(ctx, f.Selection())
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", f.Report, err)
	}

	result := &Result{Report: info, Filter: f, Start: start, End: end}

	switch f.Report {
	case "01", "04":
		var pairs [][2]string
		for _, v := range views {
			if r.difficulties.contains(f.Report, v.Difficulty) {
				pairs = append(pairs, [2]string{v.ResourceType, v.Difficulty})
			}
		}
		result.Kind = KindCrosstab
		result.Crosstab = BuildCrosstab("Format", pairs)

	case "02":
		var pairs [][2]string
		for _, v := range views {
			for _, h := range v.RepeatableValues(catalog.CodeNationalInfo) {
				pairs = append(pairs, [2]string{v.ResourceType, h})
			}
		}
		result.Kind = KindCrosstab
		result.Crosstab = BuildCrosstab("Format", pairs)

	case "03":
		var values []string
		for _, v := range views {
			values = append(values, v.RepeatableValues(catalog.CodeNacoInfo)...)
			values = append(values, v.RepeatableValues(catalog.CodeSacoInfo)...)
		}
		result.Kind = KindSummary
		result.Summary = BuildSummary(values)

	case "05":
		var values []string
		for _, v := range views {
			if r.difficulties.contains(f.Report, v.Difficulty) {
				values = append(values, v.Difficulty)
			}
		}
		result.Kind = KindSummary
		result.Summary = BuildSummary(values)

	case "06":
		var values []string
		for _, v := range views {
			if v.MaintInfo != "" {
				values = append(values, v.MaintInfo)
			}
		}
		result.Kind = KindSummary
		result.Summary = BuildSummary(values)

	default:
		return nil, fmt.Errorf("%w: no report %q", ErrInvalidFilter, f.Report)
	}

	return result, nil
}

// BuildCrosstab counts (row, column) pairs
func BuildCrosstab(rowHeader string, pairs [][2]string) *Crosstab {
	counts := make(map[[2]string]int)
	rowSet := make(map[string]bool)
	colSet := make(map[string]bool)
	for _, p := range pairs {
		counts[p]++
		rowSet[p[0]] = true
		colSet[p[1]] = true
	}

	rowLabels := sortedKeys(rowSet)
	colLabels := sortedKeys(colSet)

	ct := &Crosstab{
		Headers: append(append([]string{rowHeader}, colLabels...), "Total"),
		Totals:  CrosstabRow{Label: "Totals", Counts: make([]int, len(colLabels))},
	}

	for _, rl := range rowLabels {
		row := CrosstabRow{Label: rl, Counts: make([]int, len(colLabels))}
		for i, cl := range colLabels {
			n := counts[[2]string{rl, cl}]
			row.Counts[i] = n
			row.Total += n
		}
		if row.Total == 0 {
			continue
		}
		for i, n := range row.Counts {
			ct.Totals.Counts[i] += n
		}
		ct.Totals.Total += row.Total
		ct.Rows = append(ct.Rows, row)
	}

	return ct
}

// BuildSummary counts values, ordered by count then value
func BuildSummary(values []string) *Summary {
	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}

	s := &Summary{Headers: []string{"Value", "Count"}}
	for v, n := range counts {
		s.Rows = append(s.Rows, SummaryRow{Value: v, Count: n})
	}
	sort.Slice(s.Rows, func(i, j int) bool {
		if s.Rows[i].Count != s.Rows[j].Count {
			return s.Rows[i].Count > s.Rows[j].Count
		}
		return s.Rows[i].Value < s.Rows[j].Value
	})

	return s
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
