package analytics

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// MinLimit and MaxLimit bound the page size accepted by the report API
	MinLimit = 25
	MaxLimit = 1000

	// DefaultLimit is the page size used when none is configured
	DefaultLimit = 1000
)

var (
	// ErrInvalidLimit is returned for a page size outside [MinLimit, MaxLimit]
	ErrInvalidLimit = errors.New("page limit out of range")

	// ErrMissingPath is returned when a first-page request has no report path
	ErrMissingPath = errors.New("report path is required")
)

// Params are the query parameters of one report request. A first request
// carries Path and Filter; a continuation request carries only Token.
type Params struct {
	Path     string
	Filter   string
	Token    string
	Limit    int
	ColNames bool
}

// IsContinuation reports whether these parameters resume an earlier request
func (p Params) IsContinuation() bool {
	return p.Token != ""
}

// Continuation returns the parameters for the next page: the token merged
// with the constant paging parameters.
func (p Params) Continuation(token string) Params {
	return Params{
		Token:    token,
		Limit:    p.Limit,
		ColNames: p.ColNames,
	}
}

// Validate checks the page limit and that a first request names a report
func (p Params) Validate() error {
	if p.Limit < MinLimit || p.Limit > MaxLimit {
		return fmt.Errorf("%w: %d (valid range %d-%d)", ErrInvalidLimit, p.Limit, MinLimit, MaxLimit)
	}
	if !p.IsContinuation() && p.Path == "" {
		return ErrMissingPath
	}
	return nil
}

// Values renders the parameters as a query string
func (p Params) Values() url.Values {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(p.Limit))
	v.Set("col_names", strconv.FormatBool(p.ColNames))

	if p.IsContinuation() {
		v.Set("token", p.Token)
		return v
	}

	v.Set("path", p.Path)
	if p.Filter != "" {
		v.Set("filter", p.Filter)
	}
	return v
}

// FieldTextColumn is the report column holding the packed 962 fields
const FieldTextColumn = `"Bibliographic Details"."Local Param 02"`

// filterTemplate is the sawx LIKE expression sent as the report filter.
// It must stay on one line: the API rejects newlines and tabs.
const filterTemplate = `<sawx:expr xsi:type="sawx:list" op="like" ` +
	`xmlns:saw="com.siebel.analytics.web/report/v1.1" ` +
	`xmlns:sawx="com.siebel.analytics.web/expression/v1.1" ` +
	`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" ` +
	`xmlns:xsd="http://www.w3.org/2001/XMLSchema">` +
	`<sawx:expr xsi:type="sawx:sqlExpression">%s</sawx:expr>` +
	`<sawx:expr xsi:type="xsd:string">%%$$c %s%%</sawx:expr>` +
	`</sawx:expr>`

// BuildFilter returns the report filter matching rows whose 962 $c
// starts with pattern (a yyyymm or yyyy)
func BuildFilter(pattern string) string {
	pattern = strings.NewReplacer("\n", "", "\t", "").Replace(pattern)
	return fmt.Sprintf(filterTemplate, FieldTextColumn, pattern)
}
