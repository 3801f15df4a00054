package ingest

import (
	"context"
	"fmt"

	"github.com/franz/catstats/internal/analytics"
	"github.com/franz/catstats/internal/catalog"
	"github.com/franz/catstats/internal/marc"
	"github.com/franz/catstats/internal/query"
	"github.com/franz/catstats/internal/util"
)

// PreviewRow is one decoded field of a live report row that passed the filter
type PreviewRow struct {
	Row   analytics.Row
	Field marc.Subfields
}

// PreviewResult is the outcome of a live, non-stored query
type PreviewResult struct {
	Period      string
	Pages       int
	RowsFetched int
	Rows        []PreviewRow

	// RowErrors are rows that carried no field text
	RowErrors []*catalog.RowError
}

// Preview fetches a period and filters it in memory without touching the
// store. Repeated subfields keep only their last value.
func (o *Orchestrator) Preview(ctx context.Context, p Period, f query.Filter) (*PreviewResult, error) {
	f.Normalize()

	o.setState(FetchingPeriod, p, 1)
	defer o.setState(Idle, Period{}, 0)

	assembled, err := o.fetcher.FetchPeriod(ctx, p, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", p.Label, err)
	}

	o.setState(Normalizing, p, 1)
	cols := o.normalizer.Columns()
	res := &PreviewResult{
		Period:      p.Label,
		Pages:       assembled.Pages,
		RowsFetched: len(assembled.Rows),
	}

	for i, row := range assembled.Rows {
		text, ok := o.normalizer.FieldText(row)
		if !ok {
			rowErr := &catalog.RowError{Index: i, MMSID: row[cols.MMSID], Err: catalog.ErrMissingFieldText}
			util.ErrorLog("Preview %s: %v", p.Label, rowErr)
			res.RowErrors = append(res.RowErrors, rowErr)
			continue
		}
		for _, sf := range marc.Parse(text, marc.SingleValue) {
			if f.MatchRow(sf, row, cols) {
				res.Rows = append(res.Rows, PreviewRow{Row: row, Field: sf})
			}
		}
	}

	util.InfoLog("Preview %s: %d rows retrieved, %d after filtering, %d row errors",
		p.Label, res.RowsFetched, len(res.Rows), len(res.RowErrors))
	return res, nil
}
