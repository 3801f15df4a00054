// Package query builds the crosstab and summary statistics reports over the
// stored cataloging records, and filters live report rows in memory.
package query

import (
	"fmt"
	"sort"
	"time"
)

// ReportInfo describes one statistics report
type ReportInfo struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// Reports is the report catalog, in display order
var Reports = []ReportInfo{
	{Code: "01", Title: "New titles by format & difficulty"},
	{Code: "02", Title: "National contributions by format"},
	{Code: "03", Title: "Authority contributions"},
	{Code: "04", Title: "Maintenance by format & difficulty"},
	{Code: "05", Title: "Maintenance (broad)"},
	{Code: "06", Title: "Maintenance (details)"},
}

// LookupReport returns the catalog entry for a report code
func LookupReport(code string) (ReportInfo, bool) {
	for _, r := range Reports {
		if r.Code == code {
			return r, true
		}
	}
	return ReportInfo{}, false
}

// CatCenter is one cataloging center ($a value)
type CatCenter struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// AllCenters selects every cataloging center
const AllCenters = "ALL"

// CatCenters is the cataloging-center catalog
var CatCenters = []CatCenter{
	{Code: "clk", Name: "Clark Library"},
	{Code: "eal", Name: "East Asian Library"},
	{Code: "ethno", Name: "Ethnomusicology Archive"},
	{Code: "ftva", Name: "Film and Television Archive"},
	{Code: "iml", Name: "Instructional Media Lab"},
	{Code: "law", Name: "Law Library"},
	{Code: "lsc", Name: "Library Special Collections"},
	{Code: "rams", Name: "RAMS"},
	{Code: "ues", Name: "University Elementary School"},
}

// IsCatCenter reports whether code is a known center or ALL
func IsCatCenter(code string) bool {
	if code == AllCenters {
		return true
	}
	for _, c := range CatCenters {
		if c.Code == code {
			return true
		}
	}
	return false
}

// FirstYear is the earliest year with 962 statistics
const FirstYear = 2007

// Years returns the selectable years, newest first
func Years(now time.Time) []int {
	var years []int
	for y := now.Year(); y >= FirstYear; y-- {
		years = append(years, y)
	}
	return years
}

// Report periods
const (
	PeriodMonth        = "ym"
	PeriodFiscalYear   = "fy"
	PeriodCalendarYear = "cy"
)

// DifficultySets maps report codes to the $d values they count
type DifficultySets map[string][]string

// DefaultDifficultySets returns the built-in difficulty sets. Original
// cataloging uses levels 1-5, maintenance uses 6-9.
func DefaultDifficultySets() DifficultySets {
	newTitles := []string{"1", "2", "3", "4", "5"}
	maintenance := []string{"6", "7", "8", "9"}
	return DifficultySets{
		"01": newTitles,
		"04": maintenance,
		"05": maintenance,
	}
}

// Merge returns a copy of d with the non-empty sets of override applied
func (d DifficultySets) Merge(override map[string][]string) DifficultySets {
	out := make(DifficultySets, len(d))
	for k, v := range d {
		out[k] = append([]string(nil), v...)
	}
	for k, v := range override {
		if len(v) > 0 {
			out[k] = append([]string(nil), v...)
		}
	}
	return out
}

// For returns the difficulty set of a report, sorted
func (d DifficultySets) For(report string) []string {
	set := append([]string(nil), d[report]...)
	sort.Strings(set)
	return set
}

func (d DifficultySets) contains(report, value string) bool {
	for _, v := range d[report] {
		if v == value {
			return true
		}
	}
	return false
}

// String renders the sets for diagnostics
func (d DifficultySets) String() string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := ""
	for i, k := range keys {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%v", k, d.For(k))
	}
	return s
}
