package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/catstats/internal/report"
	"github.com/franz/catstats/internal/store"
	"github.com/franz/catstats/internal/util"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored record counts and recent ingest runs",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().Int("runs", 10, "number of recent runs to show")
	statusCmd.Flags().String("run", "", "show one run by id")
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}

	db, err := openStore(s)
	if err != nil {
		return err
	}
	defer db.Close()

	if id, _ := cmd.Flags().GetString("run"); id != "" {
		run, err := db.GetRun(id)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %s: %w", id, util.ErrNotFound)
		}
		printRun(run)
		return nil
	}

	bibs, err := db.CountBibs()
	if err != nil {
		return err
	}
	fields, _ := db.CountFieldGroups()
	repeatables, _ := db.CountRepeatables()

	util.InfoLog("Database: %s", s.DBPath)
	util.InfoLog("  Bib records: %s", humanize.Comma(int64(bibs)))
	util.InfoLog("  Field groups: %s", humanize.Comma(int64(fields)))
	util.InfoLog("  Repeatable subfields: %s", humanize.Comma(int64(repeatables)))

	limit, _ := cmd.Flags().GetInt("runs")
	runs, err := db.RecentRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		util.InfoLog("No ingest runs yet. Run 'catstats refresh --yyyymm ALL' first.")
		return nil
	}

	util.InfoLog("")
	headers, rows := runsTable(runs, time.Now())
	return report.WriteTable(os.Stdout, report.FormatTable, headers, rows)
}

func runsTable(runs []*store.Run, now time.Time) ([]string, [][]string) {
	headers := []string{"Run", "Kind", "Periods", "Started", "Duration", "Status", "Created", "Skipped", "Failed"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{
			id,
			r.Kind,
			r.Periods,
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			duration,
			r.Status,
			humanize.Comma(int64(r.BibsCreated)),
			humanize.Comma(int64(r.SkippedDuplicates)),
			itoa(r.PeriodFailures),
		})
	}
	return headers, rows
}

func printRun(r *store.Run) {
	util.InfoLog("Run %s", r.ID)
	util.InfoLog("  Kind: %s, policy %s", r.Kind, r.Policy)
	util.InfoLog("  Periods: %s", r.Periods)
	util.InfoLog("  Started: %s (%s)", r.StartedAt.Format("2006-01-02 15:04:05"), humanize.Time(r.StartedAt))
	if !r.FinishedAt.IsZero() {
		util.InfoLog("  Finished: %s", r.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	util.InfoLog("  Status: %s", r.Status)
	util.InfoLog("  Rows fetched: %s", humanize.Comma(int64(r.RowsFetched)))
	util.InfoLog("  Created: %d bibs, %d field groups, %d repeatables",
		r.BibsCreated, r.FieldsCreated, r.RepeatablesCreated)
	util.InfoLog("  Skipped: %d", r.SkippedDuplicates)
	if r.RowErrors > 0 {
		util.WarnLog("  Row errors: %d", r.RowErrors)
	}
	if r.PeriodFailures > 0 {
		util.WarnLog("  Failed periods: %d", r.PeriodFailures)
	}
	if r.Error != "" {
		util.ErrorLog("  Error: %s", r.Error)
	}
}
