package report

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/catstats/internal/ingest"
	"github.com/spf13/afero"
)

// maxRowErrors bounds the row-error table of a run summary
const maxRowErrors = 50

// RenderRunSummary renders an ingest run as Markdown
func RenderRunSummary(res *ingest.Result) string {
	var md strings.Builder

	md.WriteString("# Cataloging Statistics - Ingest Run\n\n")
	md.WriteString(fmt.Sprintf("**Run:** `%s`\n\n", res.RunID))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", res.StartedAt.Format("2006-01-02 15:04:05")))
	md.WriteString(fmt.Sprintf("**Status:** %s\n\n", res.Status))
	if res.Err != "" {
		md.WriteString(fmt.Sprintf("**Error:** %s\n\n", res.Err))
	}

	md.WriteString("---\n\n")

	md.WriteString("## Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Kind | %s |\n", res.Kind))
	md.WriteString(fmt.Sprintf("| Policy | %s |\n", res.Policy))
	md.WriteString(fmt.Sprintf("| Duration | %s |\n", res.Duration().Round(time.Second)))
	md.WriteString(fmt.Sprintf("| Rows Fetched | %s |\n", humanize.Comma(int64(res.RowsFetched))))
	md.WriteString(fmt.Sprintf("| Rows Normalized | %s |\n", humanize.Comma(int64(res.RowsNormalized))))
	md.WriteString(fmt.Sprintf("| Bib Records Created | %s |\n", humanize.Comma(int64(res.BibsCreated))))
	md.WriteString(fmt.Sprintf("| Field Groups Created | %s |\n", humanize.Comma(int64(res.FieldsCreated))))
	if res.RepeatablesCreated > 0 {
		md.WriteString(fmt.Sprintf("| Repeatable Subfields Created | %s |\n", humanize.Comma(int64(res.RepeatablesCreated))))
	}
	md.WriteString(fmt.Sprintf("| Skipped (already stored) | %s |\n", humanize.Comma(int64(res.SkippedDuplicates))))
	if len(res.RowErrors) > 0 {
		md.WriteString(fmt.Sprintf("| Row Errors | %d |\n", len(res.RowErrors)))
	}
	if len(res.PeriodFailures) > 0 {
		md.WriteString(fmt.Sprintf("| Failed Periods | %d |\n", len(res.PeriodFailures)))
	}
	md.WriteString("\n")

	if len(res.Periods) > 0 {
		md.WriteString("## Periods\n\n")
		md.WriteString("| Period | Attempts | Pages | Rows | Created | Skipped | Row Errors | Duration |\n")
		md.WriteString("|--------|----------|-------|------|---------|---------|------------|----------|\n")
		for _, p := range res.Periods {
			if p.Failed() {
				md.WriteString(fmt.Sprintf("| %s | %d | - | - | - | - | - | failed |\n", p.Period, p.Attempts))
				continue
			}
			md.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %d | %d | %s |\n",
				p.Period, p.Attempts, p.Pages, p.RowsFetched, p.Stats.BibsCreated,
				p.Stats.SkippedDuplicates, p.RowErrors, p.Duration.Round(time.Millisecond)))
		}
		md.WriteString("\n")
	}

	if len(res.PeriodFailures) > 0 {
		md.WriteString("## Failed Periods\n\n")
		md.WriteString("| Period | Attempts | Error |\n")
		md.WriteString("|--------|----------|-------|\n")
		for _, f := range res.PeriodFailures {
			md.WriteString(fmt.Sprintf("| %s | %d | %s |\n", f.Period, f.Attempts, escapeCell(f.Err)))
		}
		md.WriteString("\n")
	}

	if len(res.RowErrors) > 0 {
		md.WriteString("## Top Row Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, e := range topRowErrors(res.RowErrors, 10) {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", e.Count, escapeCell(e.Error)))
		}
		md.WriteString("\n")

		md.WriteString("## Row Errors\n\n")
		md.WriteString("| Period | Row | MMS Id | Error |\n")
		md.WriteString("|--------|-----|--------|-------|\n")
		for i, e := range res.RowErrors {
			if i == maxRowErrors {
				md.WriteString(fmt.Sprintf("\n*%d more not shown*\n", len(res.RowErrors)-maxRowErrors))
				break
			}
			md.WriteString(fmt.Sprintf("| %s | %d | %s | %s |\n", e.Period, e.Index, e.MMSID, escapeCell(e.Err)))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by catstats*\n")

	return md.String()
}

// WriteRunSummary writes the Markdown run summary to path on fs
func WriteRunSummary(fs afero.Fs, path string, res *ingest.Result) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := afero.WriteFile(fs, path, []byte(RenderRunSummary(res)), 0644); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}

	return nil
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

func topRowErrors(rowErrors []ingest.RowErrorInfo, limit int) []ErrorSummary {
	counts := make(map[string]int)
	for _, e := range rowErrors {
		counts[e.Err]++
	}

	errors := make([]ErrorSummary, 0, len(counts))
	for err, count := range counts {
		errors = append(errors, ErrorSummary{Error: err, Count: count})
	}

	sort.Slice(errors, func(i, j int) bool {
		if errors[i].Count != errors[j].Count {
			return errors[i].Count > errors[j].Count
		}
		return errors[i].Error < errors[j].Error
	})

	if len(errors) > limit {
		errors = errors[:limit]
	}

	return errors
}

func escapeCell(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}
