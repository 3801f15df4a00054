package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/franz/catstats/internal/query"
	"github.com/franz/catstats/internal/report"
	"github.com/franz/catstats/internal/util"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compute a statistics report from the stored records",
	Long: `Compute one of the statistics reports over the stored records.

Reports:
  01  New titles by format & difficulty   (crosstab)
  02  National contributions by format    (crosstab of $h)
  03  Authority contributions             (summary of $i and $j)
  04  Maintenance by format & difficulty  (crosstab)
  05  Maintenance (broad)                 (summary of $d)
  06  Maintenance (details)               (summary of $g)

--period selects the months counted:
  ym  the given month only
  fy  the fiscal year (July-June) containing the month
  cy  the calendar year`,
	Example: `  catstats report --report 01 --cat-center ALL --year 2024 --month 3 --period fy
  catstats report --report 06 --cat-center law --year 2023 --month 1 --period cy --format md
  catstats report --report 02 --year 2024 --month 6 --format xlsx --output 02.xlsx`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	now := time.Now()
	reportCmd.Flags().String("report", "", "report code 01-06 (required)")
	reportCmd.Flags().String("cat-center", query.AllCenters, "cataloging center code or ALL")
	reportCmd.Flags().String("year", fmt.Sprint(now.Year()), "year")
	reportCmd.Flags().String("month", fmt.Sprintf("%02d", int(now.Month())), "month 1-12")
	reportCmd.Flags().String("period", query.PeriodMonth, "ym, fy or cy")
	reportCmd.Flags().String("cataloger", "", "cataloger ($b)")
	reportCmd.Flags().String("language", "", "language code")
	reportCmd.Flags().String("place", "", "place of publication code")
	reportCmd.Flags().String("project", "", "project code ($k)")
	reportCmd.Flags().String("format", "table", "output format: table, md, csv or xlsx")
	reportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	reportCmd.MarkFlagRequired("report")
}

func reportFilter(cmd *cobra.Command) query.Filter {
	var f query.Filter
	f.Report, _ = cmd.Flags().GetString("report")
	f.CatCenter, _ = cmd.Flags().GetString("cat-center")
	f.Year, _ = cmd.Flags().GetString("year")
	f.Month, _ = cmd.Flags().GetString("month")
	f.Period, _ = cmd.Flags().GetString("period")
	f.Cataloger, _ = cmd.Flags().GetString("cataloger")
	f.LanguageCode, _ = cmd.Flags().GetString("language")
	f.PlaceCode, _ = cmd.Flags().GetString("place")
	f.ProjectCode, _ = cmd.Flags().GetString("project")
	return f
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	s, err := loadSettings()
	if err != nil {
		return err
	}

	formatName, _ := cmd.Flags().GetString("format")
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}
	output, _ := cmd.Flags().GetString("output")
	if format == report.FormatXLSX && output == "" && util.IsTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("%w: xlsx output needs --output or a redirected stdout", util.ErrInvalidConfig)
	}

	db, err := openStore(s)
	if err != nil {
		return err
	}
	defer db.Close()

	runner := query.NewRunner(db, s.Difficulties)
	res, err := runner.Run(ctx, reportFilter(cmd))
	if err != nil {
		var fe *query.FilterError
		if errors.As(err, &fe) {
			for _, field := range fe.Fields {
				util.ErrorLog("  %s: %s", field.Field, field.Message)
			}
		}
		return err
	}

	if format == report.FormatTable {
		util.InfoLog("%s", report.Title(res))
	}

	if output == "" {
		return report.WriteResult(os.Stdout, format, res)
	}
	return writeResultFile(afero.NewOsFs(), output, format, res)
}

// writeResultFile renders the whole result before creating path
func writeResultFile(fs afero.Fs, path string, format report.Format, res *query.Result) error {
	var buf bytes.Buffer
	if err := report.WriteResult(&buf, format, res); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(f, &buf); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	util.SuccessLog("Report written to: %s", path)
	return nil
}
