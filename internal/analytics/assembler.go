package analytics

import (
	"context"
	"errors"
	"fmt"
)

// PlaceholderColumn is the meaningless first column of every report row
const PlaceholderColumn = "Column0"

// ErrMissingToken is returned when an unfinished page carries no token
var ErrMissingToken = errors.New("report not finished but no resumption token returned")

// PageFetcher fetches one report page. *Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, params Params) (*PageResult, error)
}

// ContinuationState is threaded through one report run. ColumnNames is the
// first-seen mapping and is never replaced by later pages.
type ContinuationState struct {
	Token       string
	ColumnNames map[string]string
	Pages       int
	Finished    bool
}

// advance folds a page into the state
func (s *ContinuationState) advance(page *PageResult) {
	s.Pages++
	s.Token = page.Token
	s.Finished = page.IsFinished
	if len(s.ColumnNames) == 0 && len(page.ColumnNames) > 0 {
		s.ColumnNames = page.ColumnNames
	}
}

// AssembledResult is a complete report run with real column names applied
type AssembledResult struct {
	Rows        []Row
	ColumnNames map[string]string
	Pages       int
}

// PageObserver is notified after each page
type PageObserver func(page, rows int)

// Assembler flattens a paginated report run into one result set
type Assembler struct {
	Fetcher  PageFetcher
	Observer PageObserver
}

// Assemble runs a report to completion using the package-level defaults
func Assemble(ctx context.Context, fetcher PageFetcher, initial Params) (*AssembledResult, error) {
	return (&Assembler{Fetcher: fetcher}).Assemble(ctx, initial)
}

// Assemble runs a report to completion: the first page with the initial
// parameters, every later page with the token and constant paging
// parameters only.
func (a *Assembler) Assemble(ctx context.Context, initial Params) (*AssembledResult, error) {
	var state ContinuationState
	var rows []Row

	page, err := a.Fetcher.FetchPage(ctx, initial)
	if err != nil {
		return nil, fmt.Errorf("page 1: %w", err)
	}
	state.advance(page)
	rows = append(rows, page.Rows...)
	a.notify(state.Pages, len(page.Rows))

	for !state.Finished {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if state.Token == "" {
			return nil, fmt.Errorf("page %d: %w", state.Pages, ErrMissingToken)
		}

		page, err = a.Fetcher.FetchPage(ctx, initial.Continuation(state.Token))
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", state.Pages+1, err)
		}

		// Later pages usually omit the token; keep the one we have
		token := state.Token
		state.advance(page)
		if state.Token == "" {
			state.Token = token
		}

		rows = append(rows, page.Rows...)
		a.notify(state.Pages, len(page.Rows))
	}

	return &AssembledResult{
		Rows:        RenameColumns(rows, state.ColumnNames),
		ColumnNames: state.ColumnNames,
		Pages:       state.Pages,
	}, nil
}

func (a *Assembler) notify(page, rows int) {
	if a.Observer != nil {
		a.Observer(page, rows)
	}
}

// RenameColumns rewrites generic keys to real column names and drops the
// placeholder column. Keys without a mapping keep their generic name.
func RenameColumns(rows []Row, names map[string]string) []Row {
	out := make([]Row, 0, len(rows))

	for _, row := range rows {
		renamed := make(Row, len(row))
		for k, v := range row {
			if k == PlaceholderColumn {
				continue
			}
			if real, ok := names[k]; ok {
				k = real
			}
			renamed[k] = v
		}
		out = append(out, renamed)
	}

	return out
}
