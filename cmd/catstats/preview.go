package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/franz/catstats/internal/catalog"
	"github.com/franz/catstats/internal/ingest"
	"github.com/franz/catstats/internal/query"
	"github.com/franz/catstats/internal/report"
	"github.com/franz/catstats/internal/util"
	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Query the analytics API directly without storing anything",
	Long: `Fetch one period from the analytics API and filter it in memory.

Nothing is written to the database. Repeated subfields keep only their last
value. Center, cataloger and project filters are substring matches; language
and place codes must match exactly. Only fields carrying a difficulty ($d)
are shown.`,
	Example: `  catstats preview --yyyymm 202403 --cat-center law
  catstats preview --yyyymm 2023 --language spa --format csv > spa.csv`,
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().String("yyyymm", "", "period to query: YYYYMM or YYYY (required)")
	previewCmd.Flags().String("cat-center", query.AllCenters, "cataloging center ($a)")
	previewCmd.Flags().String("cataloger", "", "cataloger ($b)")
	previewCmd.Flags().String("language", "", "language code")
	previewCmd.Flags().String("place", "", "place of publication code")
	previewCmd.Flags().String("project", "", "project code ($k)")
	previewCmd.Flags().String("format", "table", "output format: table, md or csv")
	previewCmd.Flags().Int("limit", 0, "show at most this many rows (0 = all)")
	previewCmd.MarkFlagRequired("yyyymm")
}

// previewFilter builds the in-memory filter for a period: a month period
// selects that month, a year period the calendar year
func previewFilter(p ingest.Period) query.Filter {
	f := query.Filter{Year: p.Label[:4], Month: "01", Period: query.PeriodCalendarYear}
	if len(p.Label) == 6 {
		f.Month = p.Label[4:]
		f.Period = query.PeriodMonth
	}
	return f
}

func runPreview(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	s, err := loadSettings()
	if err != nil {
		return err
	}

	arg, _ := cmd.Flags().GetString("yyyymm")
	p, err := ingest.ParsePeriod(arg)
	if err != nil {
		return err
	}

	formatName, _ := cmd.Flags().GetString("format")
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}
	if format == report.FormatXLSX {
		return fmt.Errorf("%w: preview does not support xlsx", util.ErrInvalidConfig)
	}

	f := previewFilter(p)
	f.CatCenter, _ = cmd.Flags().GetString("cat-center")
	f.Cataloger, _ = cmd.Flags().GetString("cataloger")
	f.LanguageCode, _ = cmd.Flags().GetString("language")
	f.PlaceCode, _ = cmd.Flags().GetString("place")
	f.ProjectCode, _ = cmd.Flags().GetString("project")

	fetcher, err := newFetcher(s)
	if err != nil {
		return err
	}

	res, err := newPreviewer(s, fetcher).Preview(ctx, p, f)
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	headers, rows := previewTable(res, s.Columns, limit)
	if err := report.WriteTable(os.Stdout, format, headers, rows); err != nil {
		return err
	}

	util.InfoLog("%d of %d rows matched (%d pages)", len(res.Rows), res.RowsFetched, res.Pages)
	if len(res.RowErrors) > 0 {
		util.WarnLog("%d rows had no field text and were not decoded:", len(res.RowErrors))
		for i, e := range res.RowErrors {
			if i >= 10 {
				util.WarnLog("  ... and %d more", len(res.RowErrors)-10)
				break
			}
			util.WarnLog("  - %v", e)
		}
	}
	return nil
}

func previewTable(res *ingest.PreviewResult, cols catalog.Columns, limit int) ([]string, [][]string) {
	cols = catalog.NewNormalizer(cols, catalog.MultiValue).Columns()
	headers := []string{"MMS Id", "Center", "Cataloger", "Year-Month", "Difficulty",
		"Maint", "National", "NACO", "SACO", "Project", "Language", "Place", "Format"}

	rows := make([][]string, 0, len(res.Rows))
	for i, r := range res.Rows {
		if limit > 0 && i >= limit {
			break
		}
		sf := r.Field
		rows = append(rows, []string{
			r.Row[cols.MMSID],
			sf.Last(catalog.CodeCatCenter),
			sf.Last(catalog.CodeCataloger),
			catalog.YearMonth(sf.Last(catalog.CodeYearMonth)),
			sf.Last(catalog.CodeDifficulty),
			sf.Last(catalog.CodeMaintInfo),
			sf.Last(catalog.CodeNationalInfo),
			sf.Last(catalog.CodeNacoInfo),
			sf.Last(catalog.CodeSacoInfo),
			sf.Last(catalog.CodeProject),
			r.Row[cols.Language],
			r.Row[cols.Place],
			r.Row[cols.Resource],
		})
	}
	return headers, rows
}

// itoa is shorthand for table cells
func itoa(n int) string {
	return strconv.Itoa(n)
}
