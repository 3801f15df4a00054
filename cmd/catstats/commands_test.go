package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/franz/catstats/internal/analytics"
	"github.com/franz/catstats/internal/catalog"
	"github.com/franz/catstats/internal/config"
	"github.com/franz/catstats/internal/ingest"
	"github.com/franz/catstats/internal/marc"
	"github.com/franz/catstats/internal/query"
	"github.com/franz/catstats/internal/report"
	"github.com/franz/catstats/internal/store"
	"github.com/franz/catstats/internal/util"
	"github.com/spf13/afero"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"generic", errors.New("boom"), exitError},
		{"config", fmt.Errorf("wrapped: %w", util.ErrInvalidConfig), exitUsage},
		{"period", fmt.Errorf("%w: 2024x", ingest.ErrInvalidPeriod), exitUsage},
		{"filter", &query.FilterError{}, exitUsage},
		{"locked", fmt.Errorf("db.lock: %w", ingest.ErrRunInProgress), exitLocked},
		{"period failures", errPeriodFailures, exitPeriodFailures},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestPreviewFilter(t *testing.T) {
	month, _ := ingest.Month("202403")
	f := previewFilter(month)
	if f.Year != "2024" || f.Month != "03" || f.Period != query.PeriodMonth {
		t.Errorf("month filter = %+v", f)
	}

	f = previewFilter(ingest.Year(2023))
	if f.Year != "2023" || f.Month != "01" || f.Period != query.PeriodCalendarYear {
		t.Errorf("year filter = %+v", f)
	}
}

type stubFetcher struct {
	rows []analytics.Row
}

func (f stubFetcher) FetchPeriod(ctx context.Context, p ingest.Period, observer analytics.PageObserver) (*analytics.AssembledResult, error) {
	return &analytics.AssembledResult{Rows: f.rows, Pages: 1}, nil
}

func TestNewPreviewer(t *testing.T) {
	s := &config.Settings{Policy: catalog.MultiValue, Columns: catalog.DefaultColumns()}
	fetcher := stubFetcher{rows: []analytics.Row{
		{"MMS Id": "1", "Local Param 02": "962 $$a clk $$b amy $$c 20240315"},
		{"MMS Id": "2"},
	}}

	month, _ := ingest.Month("202403")
	res, err := newPreviewer(s, fetcher).Preview(context.Background(), month, previewFilter(month))
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if res.RowsFetched != 2 || res.Pages != 1 {
		t.Errorf("fetched %d rows in %d pages", res.RowsFetched, res.Pages)
	}
	if len(res.RowErrors) != 1 || res.RowErrors[0].MMSID != "2" {
		t.Errorf("row errors = %v", res.RowErrors)
	}
}

func TestParseMarcPolicy(t *testing.T) {
	if p, err := parseMarcPolicy(""); err != nil || p != marc.MultiValue {
		t.Errorf("default policy = %v, %v", p, err)
	}
	if p, err := parseMarcPolicy("SINGLE"); err != nil || p != marc.SingleValue {
		t.Errorf("single policy = %v, %v", p, err)
	}
	if _, err := parseMarcPolicy("both"); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestDecodeTable(t *testing.T) {
	groups := marc.Parse("$$a law $$h pcc $$h conser ; $$a music", marc.MultiValue)
	headers, rows := decodeTable(groups)

	if len(headers) != 3 {
		t.Fatalf("headers = %v", headers)
	}
	want := [][]string{
		{"1", "a", "law"},
		{"1", "h", "pcc | conser"},
		{"2", "a", "music"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		if strings.Join(rows[i], ",") != strings.Join(want[i], ",") {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestRunsTable(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	runs := []*store.Run{
		{
			ID:          "0123456789abcdef",
			Kind:        "full",
			Periods:     "2024..2007",
			StartedAt:   now.Add(-2 * time.Hour),
			FinishedAt:  now.Add(-2*time.Hour + 90*time.Second),
			Status:      "completed",
			BibsCreated: 12500,
		},
		{ID: "short", Kind: "partial", StartedAt: now, Status: "running"},
	}

	headers, rows := runsTable(runs, now)
	if len(rows) != 2 || len(rows[0]) != len(headers) {
		t.Fatalf("unexpected table shape: %v %v", headers, rows)
	}
	if rows[0][0] != "01234567" {
		t.Errorf("expected truncated id, got %q", rows[0][0])
	}
	if rows[0][4] != "1m30s" {
		t.Errorf("duration = %q", rows[0][4])
	}
	if rows[0][6] != "12,500" {
		t.Errorf("created = %q", rows[0][6])
	}
	if rows[1][4] != "-" {
		t.Errorf("unfinished run duration = %q", rows[1][4])
	}
}

func TestWriteResultFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	res := &query.Result{
		Report: query.ReportInfo{Code: "05", Title: "Maintenance (broad)"},
		Kind:   query.KindSummary,
		Summary: &query.Summary{
			Headers: []string{"Maintenance", "Count"},
			Rows:    []query.SummaryRow{{Value: "heading", Count: 3}},
		},
	}

	if err := writeResultFile(fs, "out/05.csv", report.FormatCSV, res); err != nil {
		t.Fatalf("writeResultFile failed: %v", err)
	}

	data, err := afero.ReadFile(fs, "out/05.csv")
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if !strings.Contains(string(data), "heading,3") {
		t.Errorf("unexpected output:\n%s", data)
	}
}
