// Package ingest drives the fetch, normalize and commit cycle over a list of
// periods, with per-period retries and a storage-target lock.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/franz/catstats/internal/catalog"
	"github.com/franz/catstats/internal/store"
	"github.com/franz/catstats/internal/util"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
)

// ErrRunInProgress is returned when another run holds the storage lock
var ErrRunInProgress = fmt.Errorf("ingest run already in progress: %w", util.ErrLocked)

// Store is the storage contract the orchestrator writes through.
// *store.Store implements it.
type Store interface {
	CommitPeriod(ctx context.Context, records []catalog.Record, policy catalog.AggregationPolicy) (store.CommitStats, error)
	Wipe(ctx context.Context) error
	RecordRun(ctx context.Context, run *store.Run) error
}

// State is the orchestrator's position in the cycle
type State int

const (
	Idle State = iota
	FetchingPeriod
	Normalizing
	Committing
	Retrying
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FetchingPeriod:
		return "fetching"
	case Normalizing:
		return "normalizing"
	case Committing:
		return "committing"
	case Retrying:
		return "retrying"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateObserver is told about every state transition
type StateObserver func(state State, period Period, attempt int)

// EventRecorder receives run events. *report.EventLogger implements it.
type EventRecorder interface {
	LogFetch(runID, period string, pages, rows int, duration time.Duration, err error) error
	LogPage(runID, period string, page, rows int) error
	LogNormalize(runID, period string, records, rowErrors int) error
	LogCommit(runID, period string, stats store.CommitStats, duration time.Duration, err error) error
	LogSkip(runID, period string, skipped int) error
	LogRowError(runID, period string, index int, mmsid string, err error) error
	LogRetry(runID, period string, attempt int, err error) error
	LogPeriodFailure(runID, period string, attempts int, err error) error
	LogRun(runID, kind, status string, duration time.Duration, err error) error
}

// Config holds orchestrator configuration
type Config struct {
	Fetcher  Fetcher
	Store    Store
	Policy   catalog.AggregationPolicy
	Columns  catalog.Columns
	LockPath string            // Lock file guarding the storage target ("" = no locking)
	Retry    *util.RetryConfig // nil = util.PeriodRetryConfig()
	Events   EventRecorder     // nil = no events
	Observer StateObserver
}

// Orchestrator runs ingestion over periods
type Orchestrator struct {
	fetcher    Fetcher
	store      Store
	normalizer *catalog.Normalizer
	policy     catalog.AggregationPolicy
	lockPath   string
	retry      *util.RetryConfig
	events     EventRecorder
	observer   StateObserver

	mu    sync.Mutex
	state State
}

// New creates an Orchestrator
func New(cfg *Config) *Orchestrator {
	retry := cfg.Retry
	if retry == nil {
		retry = util.PeriodRetryConfig()
	}
	events := cfg.Events
	if events == nil {
		events = nopRecorder{}
	}

	return &Orchestrator{
		fetcher:    cfg.Fetcher,
		store:      cfg.Store,
		normalizer: catalog.NewNormalizer(cfg.Columns, cfg.Policy),
		policy:     cfg.Policy,
		lockPath:   cfg.LockPath,
		retry:      retry,
		events:     events,
		observer:   cfg.Observer,
	}
}

// State returns the current state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State, p Period, attempt int) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()

	if o.observer != nil {
		o.observer(s, p, attempt)
	}
}

// Run kinds
const (
	KindFull        = "full"
	KindIncremental = "incremental"
)

// RunOptions control one run
type RunOptions struct {
	// Wipe clears every stored record before the first period (full refresh)
	Wipe bool

	// LockTimeout waits this long for a held lock; 0 fails immediately
	LockTimeout time.Duration

	// OnPeriod is called after each period, successful or not
	OnPeriod func(PeriodResult)
}

// RowErrorInfo is one row that could not be normalized
type RowErrorInfo struct {
	Period string
	Index  int
	MMSID  string
	Err    string
}

// PeriodFailure is a period that exhausted its attempts
type PeriodFailure struct {
	Period   string
	Attempts int
	Err      string
}

// PeriodResult summarizes one period
type PeriodResult struct {
	Period         string
	Attempts       int
	Pages          int
	RowsFetched    int
	RowsNormalized int
	RowErrors      int
	Stats          store.CommitStats
	Duration       time.Duration
	Err            string
}

// Failed reports whether the period exhausted its attempts
func (p PeriodResult) Failed() bool {
	return p.Err != ""
}

// Result summarizes a run
type Result struct {
	RunID              string
	Kind               string
	Policy             string
	Status             string
	RowsFetched        int
	RowsNormalized     int
	BibsCreated        int
	FieldsCreated      int
	RepeatablesCreated int
	SkippedDuplicates  int
	RowErrors          []RowErrorInfo
	PeriodFailures     []PeriodFailure
	Periods            []PeriodResult
	StartedAt          time.Time
	FinishedAt         time.Time
	Err                string
}

// Duration returns the wall time of the run
func (r *Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Result) run(periods []Period) *store.Run {
	return &store.Run{
		ID:                 r.RunID,
		Kind:               r.Kind,
		Periods:            Labels(periods),
		Policy:             r.Policy,
		StartedAt:          r.StartedAt,
		FinishedAt:         r.FinishedAt,
		Status:             r.Status,
		RowsFetched:        r.RowsFetched,
		BibsCreated:        r.BibsCreated,
		FieldsCreated:      r.FieldsCreated,
		RepeatablesCreated: r.RepeatablesCreated,
		SkippedDuplicates:  r.SkippedDuplicates,
		RowErrors:          len(r.RowErrors),
		PeriodFailures:     len(r.PeriodFailures),
		Error:              r.Err,
	}
}

// Run ingests every period in order. A period failing all its attempts is
// recorded and the run moves on; only lock, wipe and cancellation errors
// end the run early.
func (o *Orchestrator) Run(ctx context.Context, periods []Period, opts RunOptions) (*Result, error) {
	kind := KindIncremental
	if opts.Wipe {
		kind = KindFull
	}

	if o.lockPath != "" {
		lock := util.NewFileLock(o.lockPath)
		if err := acquire(ctx, lock, opts.LockTimeout); err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				util.WarnLog("Failed to release lock %s: %v", lock.Path(), err)
			}
		}()
	}

	res := &Result{
		RunID:     uuid.NewString(),
		Kind:      kind,
		Policy:    o.policy.String(),
		Status:    store.RunRunning,
		StartedAt: time.Now(),
	}

	util.InfoLog("Ingest run %s (%s, %d periods: %s, policy %s)",
		res.RunID, kind, len(periods), Labels(periods), res.Policy)
	if err := o.store.RecordRun(ctx, res.run(periods)); err != nil {
		util.WarnLog("Failed to record run start: %v", err)
	}

	runErr := o.runPeriods(ctx, periods, opts, res)

	res.FinishedAt = time.Now()
	switch {
	case runErr != nil:
		res.Status = store.RunFailed
		res.Err = runErr.Error()
	case len(res.PeriodFailures) > 0:
		res.Status = store.RunCompletedWithFailures
	default:
		res.Status = store.RunCompleted
	}
	o.setState(Idle, Period{}, 0)

	// Record with a fresh context so a cancelled run is still persisted
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.store.RecordRun(recordCtx, res.run(periods)); err != nil {
		util.WarnLog("Failed to record run result: %v", err)
	}
	o.events.LogRun(res.RunID, kind, res.Status, res.Duration(), runErr)

	return res, runErr
}

func (o *Orchestrator) runPeriods(ctx context.Context, periods []Period, opts RunOptions, res *Result) error {
	if opts.Wipe {
		util.InfoLog("Wiping stored records before full refresh")
		if err := o.store.Wipe(ctx); err != nil {
			return fmt.Errorf("failed to wipe records: %w", err)
		}
	}

	for _, p := range periods {
		if err := ctx.Err(); err != nil {
			return err
		}

		pr := o.runPeriod(ctx, res, p)
		if opts.OnPeriod != nil {
			opts.OnPeriod(pr)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}

// periodOutcome is what one successful attempt produced
type periodOutcome struct {
	pages     int
	rows      int
	records   []catalog.Record
	rowErrors []*catalog.RowError
	stats     store.CommitStats
}

func (o *Orchestrator) runPeriod(ctx context.Context, res *Result, p Period) PeriodResult {
	start := time.Now()
	pr := PeriodResult{Period: p.Label}

	cfg := *o.retry
	cfg.OnRetry = func(attempt int, err error) {
		util.ErrorLog("Failure %d at %s: %v", attempt, p.Label, err)
		o.events.LogRetry(res.RunID, p.Label, attempt, err)
		o.setState(Retrying, p, attempt)
	}

	outcome, err := util.RetryWithBackoff(ctx, &cfg, func(attempt int) (*periodOutcome, error) {
		pr.Attempts = attempt

		var out *periodOutcome
		var attemptErr error
		if recovered := panics.Try(func() {
			out, attemptErr = o.attempt(ctx, res.RunID, p, attempt)
		}); recovered != nil {
			return nil, fmt.Errorf("period %s: %w", p.Label, recovered.AsError())
		}
		return out, attemptErr
	}, "period "+p.Label)

	pr.Duration = time.Since(start)

	if err != nil {
		pr.Err = err.Error()
		if ctx.Err() == nil {
			util.ErrorLog("Total failure for %s after %d attempts: %v", p.Label, pr.Attempts, err)
			res.PeriodFailures = append(res.PeriodFailures, PeriodFailure{
				Period:   p.Label,
				Attempts: pr.Attempts,
				Err:      err.Error(),
			})
			o.events.LogPeriodFailure(res.RunID, p.Label, pr.Attempts, err)
		}
		res.Periods = append(res.Periods, pr)
		return pr
	}

	pr.Pages = outcome.pages
	pr.RowsFetched = outcome.rows
	pr.RowsNormalized = len(outcome.records)
	pr.RowErrors = len(outcome.rowErrors)
	pr.Stats = outcome.stats

	res.RowsFetched += outcome.rows
	res.RowsNormalized += len(outcome.records)
	res.BibsCreated += outcome.stats.BibsCreated
	res.FieldsCreated += outcome.stats.FieldsCreated
	res.RepeatablesCreated += outcome.stats.RepeatablesCreated
	res.SkippedDuplicates += outcome.stats.SkippedDuplicates
	for _, re := range outcome.rowErrors {
		res.RowErrors = append(res.RowErrors, RowErrorInfo{
			Period: p.Label,
			Index:  re.Index,
			MMSID:  re.MMSID,
			Err:    re.Err.Error(),
		})
	}
	res.Periods = append(res.Periods, pr)

	util.InfoLog("Period %s: %d rows, %d bibs created, %d skipped, %d row errors",
		p.Label, outcome.rows, outcome.stats.BibsCreated, outcome.stats.SkippedDuplicates, len(outcome.rowErrors))

	return pr
}

// attempt runs fetch, normalize and commit once. Nothing is stored unless
// the commit succeeds as a whole.
func (o *Orchestrator) attempt(ctx context.Context, runID string, p Period, attempt int) (*periodOutcome, error) {
	o.setState(FetchingPeriod, p, attempt)
	fetchStart := time.Now()
	assembled, err := o.fetcher.FetchPeriod(ctx, p, func(page, rows int) {
		o.events.LogPage(runID, p.Label, page, rows)
	})
	if err != nil {
		o.events.LogFetch(runID, p.Label, 0, 0, time.Since(fetchStart), err)
		return nil, fmt.Errorf("fetch %s: %w", p.Label, err)
	}
	o.events.LogFetch(runID, p.Label, assembled.Pages, len(assembled.Rows), time.Since(fetchStart), nil)

	o.setState(Normalizing, p, attempt)
	out := &periodOutcome{pages: assembled.Pages, rows: len(assembled.Rows)}
	for i, row := range assembled.Rows {
		rec, err := o.normalizer.Normalize(i, row)
		if err != nil {
			var rowErr *catalog.RowError
			if !errors.As(err, &rowErr) {
				return nil, err
			}
			util.ErrorLog("Period %s: %v", p.Label, rowErr)
			o.events.LogRowError(runID, p.Label, rowErr.Index, rowErr.MMSID, rowErr.Err)
			out.rowErrors = append(out.rowErrors, rowErr)
			continue
		}
		out.records = append(out.records, *rec)
	}
	o.events.LogNormalize(runID, p.Label, len(out.records), len(out.rowErrors))

	o.setState(Committing, p, attempt)
	commitStart := time.Now()
	stats, err := o.store.CommitPeriod(ctx, out.records, o.policy)
	o.events.LogCommit(runID, p.Label, stats, time.Since(commitStart), err)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", p.Label, err)
	}
	if stats.SkippedDuplicates > 0 {
		o.events.LogSkip(runID, p.Label, stats.SkippedDuplicates)
	}
	out.stats = stats

	return out, nil
}

func acquire(ctx context.Context, lock *util.FileLock, timeout time.Duration) error {
	if timeout > 0 {
		err := lock.Lock(ctx, timeout)
		if errors.Is(err, util.ErrLockTimeout) {
			return ErrRunInProgress
		}
		return err
	}

	ok, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return ErrRunInProgress
	}
	return nil
}

type nopRecorder struct{}

func (nopRecorder) LogFetch(string, string, int, int, time.Duration, error) error {
	return nil
}

func (nopRecorder) LogPage(string, string, int, int) error {
	return nil
}

func (nopRecorder) LogNormalize(string, string, int, int) error {
	return nil
}

func (nopRecorder) LogCommit(string, string, store.CommitStats, time.Duration, error) error {
	return nil
}

func (nopRecorder) LogSkip(string, string, int) error {
	return nil
}

func (nopRecorder) LogRowError(string, string, int, string, error) error {
	return nil
}

func (nopRecorder) LogRetry(string, string, int, error) error {
	return nil
}

func (nopRecorder) LogPeriodFailure(string, string, int, error) error {
	return nil
}

func (nopRecorder) LogRun(string, string, string, time.Duration, error) error {
	return nil
}
