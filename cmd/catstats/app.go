package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/franz/catstats/internal/analytics"
	"github.com/franz/catstats/internal/config"
	"github.com/franz/catstats/internal/ingest"
	"github.com/franz/catstats/internal/query"
	"github.com/franz/catstats/internal/report"
	"github.com/franz/catstats/internal/store"
	"github.com/franz/catstats/internal/util"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// errPeriodFailures is returned by refresh when some periods exhausted
// their attempts
var errPeriodFailures = errors.New("some periods failed to load")

// Exit codes
const (
	exitError          = 1
	exitUsage          = 2
	exitLocked         = 3
	exitPeriodFailures = 4
)

func exitCode(err error) int {
	switch {
	case errors.Is(err, util.ErrInvalidConfig),
		errors.Is(err, ingest.ErrInvalidPeriod),
		errors.Is(err, query.ErrInvalidFilter):
		return exitUsage
	case errors.Is(err, util.ErrLocked):
		return exitLocked
	case errors.Is(err, errPeriodFailures):
		return exitPeriodFailures
	default:
		return exitError
	}
}

// loadSettings resolves settings and starts log mirroring
func loadSettings() (*config.Settings, error) {
	s, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	if s.LogFile != "" {
		if err := util.MirrorToFile(s.LogFile); err != nil {
			util.WarnLog("Log file disabled: %v", err)
		}
	}
	return s, nil
}

// openStore opens the statistics database, tuned for network filesystems
// when the database lives on one
func openStore(s *config.Settings) (*store.Store, error) {
	networkDB := s.NetworkDB
	if !networkDB && util.IsNetworkPath(filepath.Dir(s.DBPath)) {
		util.InfoLog("Database is on a network filesystem, enabling network pragmas")
		networkDB = true
	}

	util.DebugLog("Opening database: %s", s.DBPath)
	db, err := store.OpenWithOptions(s.DBPath, &store.OpenOptions{NetworkOptimized: networkDB})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// newEventLogger opens the per-run JSONL event log, falling back to no
// events when the artifacts directory is unusable
func newEventLogger(s *config.Settings) *report.EventLogger {
	level := report.ParseLevel(s.EventLevel)
	if util.IsQuiet() {
		level = report.LevelWarning
	} else if viper.GetBool(config.KeyVerbose) {
		level = report.LevelDebug
	}

	logger, err := report.NewEventLogger(afero.NewOsFs(), s.Artifacts, level)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	util.InfoLog("Event log: %s", logger.Path())
	return logger
}

// newFetcher builds the report fetcher from the API settings
func newFetcher(s *config.Settings) (*ingest.ReportFetcher, error) {
	if err := s.RequireAPIKey(); err != nil {
		return nil, err
	}
	client, err := analytics.NewClient(s.ClientConfig())
	if err != nil {
		return nil, err
	}
	util.DebugLog("API %s, key %s", s.APIBaseURL, s.MaskedAPIKey())
	return ingest.NewReportFetcher(client, s.ReportPath, s.PageLimit), nil
}

// newOrchestrator wires the fetcher, store and event log together
func newOrchestrator(s *config.Settings, fetcher ingest.Fetcher, db *store.Store, events *report.EventLogger, observer ingest.StateObserver) *ingest.Orchestrator {
	return ingest.New(&ingest.Config{
		Fetcher:  fetcher,
		Store:    db,
		Policy:   s.Policy,
		Columns:  s.Columns,
		LockPath: s.LockPath(),
		Retry:    s.RetryConfig(),
		Events:   events,
		Observer: observer,
	})
}

// newPreviewer builds an orchestrator for live previews: it never commits,
// so it has no store and no event log
func newPreviewer(s *config.Settings, fetcher ingest.Fetcher) *ingest.Orchestrator {
	return ingest.New(&ingest.Config{
		Fetcher: fetcher,
		Policy:  s.Policy,
		Columns: s.Columns,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
