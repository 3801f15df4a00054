package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/catstats/internal/config"
	"github.com/franz/catstats/internal/ingest"
	"github.com/franz/catstats/internal/report"
	"github.com/franz/catstats/internal/util"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Load cataloging statistics from the analytics API into the database",
	Long: `Load the cataloging statistics report for one period into the database.

--yyyymm accepts:
  YYYYMM  one month (incremental, records already stored are skipped)
  YYYY    one year (incremental)
  ALL     full refresh: wipe stored records, then load every year from
          ingest.first_year up to the current year, newest first

Each period is fetched, normalized and committed in one transaction. A
period that fails is retried up to ingest.max_attempts times in total; if
it still fails it is recorded and the run continues with the next period.

Only one refresh may run against a database at a time.`,
	Example: `  catstats refresh --yyyymm 202403
  catstats refresh --yyyymm 2023 --policy joined
  catstats refresh --yyyymm ALL`,
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().String("yyyymm", "", "period to load: YYYYMM, YYYY or ALL (required)")
	refreshCmd.Flags().Duration("lock-timeout", 0, "wait this long for another run to finish")
	refreshCmd.Flags().Bool("no-summary", false, "do not write the Markdown run summary")
	refreshCmd.MarkFlagRequired("yyyymm")

	bindFlags(refreshCmd.Flags(), map[string]string{"lock-timeout": config.KeyLockTimeout})
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	s, err := loadSettings()
	if err != nil {
		return err
	}

	arg, _ := cmd.Flags().GetString("yyyymm")
	periods, full, err := ingest.Plan(arg, time.Now(), s.FirstYear)
	if err != nil {
		return err
	}

	fetcher, err := newFetcher(s)
	if err != nil {
		return err
	}

	db, err := openStore(s)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newEventLogger(s)
	defer logger.Close()

	util.InfoLog("=== Refresh ===")
	util.InfoLog("Periods: %s (%d)", ingest.Labels(periods), len(periods))
	util.InfoLog("Policy: %s", s.Policy)
	if full {
		util.WarnLog("Full refresh: all stored records will be replaced")
	}

	var bar *progressbar.ProgressBar
	if util.ShowProgress() && len(periods) > 1 {
		bar = progressbar.NewOptions(len(periods),
			progressbar.OptionSetDescription("Loading"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("periods"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	observer := func(state ingest.State, p ingest.Period, attempt int) {
		if bar != nil && state != ingest.Idle {
			bar.Describe(fmt.Sprintf("%s %s", p.Label, state))
		}
		util.DebugLog("%s: %s (attempt %d)", p.Label, state, attempt)
	}

	orch := newOrchestrator(s, fetcher, db, logger, observer)
	res, runErr := orch.Run(ctx, periods, ingest.RunOptions{
		Wipe:        full,
		LockTimeout: s.LockTimeout,
		OnPeriod: func(pr ingest.PeriodResult) {
			if bar != nil {
				bar.Add(1)
			}
			if pr.Failed() {
				util.WarnLog("%s failed after %d attempts: %s", pr.Period, pr.Attempts, pr.Err)
				return
			}
			util.InfoLog("%s: %s rows, %s new, %s skipped (%s)", pr.Period,
				humanize.Comma(int64(pr.RowsFetched)), humanize.Comma(int64(pr.Stats.BibsCreated)),
				humanize.Comma(int64(pr.Stats.SkippedDuplicates)), pr.Duration.Round(time.Millisecond))
		},
	})
	if bar != nil {
		bar.Finish()
	}

	if errors.Is(runErr, ingest.ErrRunInProgress) {
		return fmt.Errorf("%w (lock file %s)", runErr, s.LockPath())
	}
	if res == nil {
		return runErr
	}

	printRunSummary(res)

	if noSummary, _ := cmd.Flags().GetBool("no-summary"); !noSummary {
		path := s.SummaryPath(res.RunID)
		if err := report.WriteRunSummary(afero.NewOsFs(), path, res); err != nil {
			util.WarnLog("Failed to write run summary: %v", err)
		} else {
			util.SuccessLog("Run summary saved to: %s", path)
		}
	}

	if runErr != nil {
		return fmt.Errorf("refresh failed: %w", runErr)
	}
	if len(res.PeriodFailures) > 0 {
		util.InfoLog("To retry: catstats refresh --yyyymm <period>")
		return fmt.Errorf("%w: %d of %d", errPeriodFailures, len(res.PeriodFailures), len(periods))
	}
	return nil
}

func printRunSummary(res *ingest.Result) {
	util.InfoLog("")
	util.SuccessLog("=== Refresh Summary ===")
	util.InfoLog("Run: %s (%s)", res.RunID, res.Status)
	util.InfoLog("Total time: %v", res.Duration().Round(time.Millisecond))
	util.InfoLog("Rows fetched: %s", humanize.Comma(int64(res.RowsFetched)))
	util.InfoLog("  Bib records created: %s", humanize.Comma(int64(res.BibsCreated)))
	util.InfoLog("  Field groups created: %s", humanize.Comma(int64(res.FieldsCreated)))
	if res.RepeatablesCreated > 0 {
		util.InfoLog("  Repeatable subfields created: %s", humanize.Comma(int64(res.RepeatablesCreated)))
	}
	util.InfoLog("  Skipped (already stored): %s", humanize.Comma(int64(res.SkippedDuplicates)))

	if len(res.RowErrors) > 0 {
		util.WarnLog("Row errors: %d", len(res.RowErrors))
		for i, e := range res.RowErrors {
			if i >= 10 {
				util.WarnLog("... and %d more", len(res.RowErrors)-10)
				break
			}
			util.WarnLog("  - %s row %d (%s): %s", e.Period, e.Index, e.MMSID, e.Err)
		}
	}
	for _, f := range res.PeriodFailures {
		util.ErrorLog("Period %s failed after %d attempts: %s", f.Period, f.Attempts, f.Err)
	}
}
