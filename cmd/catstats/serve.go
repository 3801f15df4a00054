package main

import (
	"time"

	"github.com/franz/catstats/internal/config"
	"github.com/franz/catstats/internal/ingest"
	"github.com/franz/catstats/internal/query"
	"github.com/franz/catstats/internal/report"
	"github.com/franz/catstats/internal/server"
	"github.com/franz/catstats/internal/util"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reports and background loads over HTTP",
	Long: `Start the HTTP server.

Endpoints:
  GET  /api/healthz   liveness
  GET  /api/options   report codes, cataloging centers, years and periods
  GET  /api/report    compute a report (same parameters as the report command)
  POST /api/load      start a background load, ?yyyymm=YYYYMM|YYYY|ALL
  GET  /api/runs      recent ingest runs
  GET  /api/logs      tail of the log file (?lines=N)

Only one load runs at a time; a second request is answered with 409.`,
	Example: `  catstats serve --addr :8080 --log-file logs/catstats.log`,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default from server.addr)")
	bindFlags(serveCmd.Flags(), map[string]string{"addr": config.KeyServerAddr})
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	s, err := loadSettings()
	if err != nil {
		return err
	}

	db, err := openStore(s)
	if err != nil {
		return err
	}
	defer db.Close()

	var loader server.Loader
	if fetcher, err := newFetcher(s); err != nil {
		util.WarnLog("Loads disabled: %v", err)
	} else {
		logger := newEventLogger(s)
		defer logger.Close()
		loader = newOrchestrator(s, fetcher, db, logger, nil)
	}

	srv := server.New(server.Config{
		Reports:     query.NewRunner(db, s.Difficulties),
		Loader:      loader,
		Runs:        db,
		LockPath:    s.LockPath(),
		Fs:          afero.NewOsFs(),
		LogFile:     s.LogFile,
		FirstYear:   s.FirstYear,
		LockTimeout: s.LockTimeout,
		OnLoadDone: func(res *ingest.Result, err error) {
			if res == nil {
				util.ErrorLog("Load failed: %v", err)
				return
			}
			util.InfoLog("Load %s finished: %s in %s", res.RunID, res.Status, res.Duration().Round(time.Second))
			if err := report.WriteRunSummary(afero.NewOsFs(), s.SummaryPath(res.RunID), res); err != nil {
				util.WarnLog("Failed to write run summary: %v", err)
			}
		},
	})
	defer srv.Close()

	return srv.Run(ctx, s.ServerAddr)
}
