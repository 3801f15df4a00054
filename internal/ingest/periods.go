package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FirstYear is the oldest year a full refresh loads
const FirstYear = 2007

// ErrInvalidPeriod is returned for a period that is neither yyyymm nor yyyy
var ErrInvalidPeriod = errors.New("invalid period")

// Period is one unit of ingestion: a month or a whole year. Pattern is the
// $c prefix the remote report is filtered on.
type Period struct {
	Label   string
	Pattern string
}

func (p Period) String() string {
	return p.Label
}

// Month returns the period for one yyyymm
func Month(yyyymm string) (Period, error) {
	if len(yyyymm) != 6 || !isDigits(yyyymm) {
		return Period{}, fmt.Errorf("%w: %q is not yyyymm", ErrInvalidPeriod, yyyymm)
	}
	m, _ := strconv.Atoi(yyyymm[4:])
	if m < 1 || m > 12 {
		return Period{}, fmt.Errorf("%w: month %02d out of range", ErrInvalidPeriod, m)
	}
	return Period{Label: yyyymm, Pattern: yyyymm}, nil
}

// Year returns the period for one whole year
func Year(yyyy int) Period {
	s := fmt.Sprintf("%04d", yyyy)
	return Period{Label: s, Pattern: s}
}

// ParsePeriod parses a yyyymm or yyyy period
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	switch len(s) {
	case 6:
		return Month(s)
	case 4:
		if !isDigits(s) {
			break
		}
		y, _ := strconv.Atoi(s)
		return Year(y), nil
	}
	return Period{}, fmt.Errorf("%w: %q (use YYYYMM or YYYY)", ErrInvalidPeriod, s)
}

// FullRefreshPeriods returns one period per year from the current year back
// to firstYear, newest first
func FullRefreshPeriods(now time.Time, firstYear int) []Period {
	if firstYear <= 0 {
		firstYear = FirstYear
	}

	var periods []Period
	for y := now.Year(); y >= firstYear; y-- {
		periods = append(periods, Year(y))
	}
	return periods
}

// Labels joins period labels for logs and run history
func Labels(periods []Period) string {
	switch len(periods) {
	case 0:
		return ""
	case 1:
		return periods[0].Label
	}
	if len(periods) > 3 {
		return periods[0].Label + ".." + periods[len(periods)-1].Label
	}
	labels := make([]string, len(periods))
	for i, p := range periods {
		labels[i] = p.Label
	}
	return strings.Join(labels, ",")
}

// AllPeriods selects a full refresh
const AllPeriods = "ALL"

// Plan resolves a refresh argument: "ALL" is a full refresh over every year
// back to firstYear, otherwise a single yyyymm or yyyy period.
func Plan(arg string, now time.Time, firstYear int) (periods []Period, full bool, err error) {
	if strings.EqualFold(strings.TrimSpace(arg), AllPeriods) {
		return FullRefreshPeriods(now, firstYear), true, nil
	}
	p, err := ParsePeriod(arg)
	if err != nil {
		return nil, false, err
	}
	return []Period{p}, false, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
