package ingest

import (
	"context"

	"github.com/franz/catstats/internal/analytics"
)

// DefaultReportPath is the catalog statistics report in the shared folder
const DefaultReportPath = "/shared/University of California Los Angeles (UCLA) 01UCS_LAL/Cataloging/Reports/API/Cataloging Statistics (API)"

var _ Fetcher = (*ReportFetcher)(nil)

// Fetcher retrieves the complete remote result set of one period
type Fetcher interface {
	FetchPeriod(ctx context.Context, p Period, observer analytics.PageObserver) (*analytics.AssembledResult, error)
}

// ReportFetcher runs the statistics report for a period through the
// report assembler
type ReportFetcher struct {
	Pages      analytics.PageFetcher
	ReportPath string
	Limit      int
}

// NewReportFetcher creates a fetcher with default path and page size
func NewReportFetcher(pages analytics.PageFetcher, reportPath string, limit int) *ReportFetcher {
	if reportPath == "" {
		reportPath = DefaultReportPath
	}
	if limit <= 0 {
		limit = analytics.DefaultLimit
	}
	return &ReportFetcher{Pages: pages, ReportPath: reportPath, Limit: limit}
}

// Params returns the first-page parameters for a period
func (f *ReportFetcher) Params(p Period) analytics.Params {
	return analytics.Params{
		Path:     f.ReportPath,
		Filter:   analytics.BuildFilter(p.Pattern),
		Limit:    f.Limit,
		ColNames: true,
	}
}

// FetchPeriod assembles every page of the period's report
func (f *ReportFetcher) FetchPeriod(ctx context.Context, p Period, observer analytics.PageObserver) (*analytics.AssembledResult, error) {
	asm := &analytics.Assembler{Fetcher: f.Pages, Observer: observer}
	return asm.Assemble(ctx, f.Params(p))
}
