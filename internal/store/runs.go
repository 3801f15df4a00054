package store

import (
	"context"
	"database/sql"
	"time"
)

// Run statuses
const (
	RunRunning               = "running"
	RunCompleted             = "completed"
	RunCompletedWithFailures = "completed_with_failures"
	RunFailed                = "failed"
)

// Run is one persisted ingest run
type Run struct {
	ID                 string
	Kind               string // "full", "incremental" or "preview"
	Periods            string
	Policy             string
	StartedAt          time.Time
	FinishedAt         time.Time
	Status             string
	RowsFetched        int
	BibsCreated        int
	FieldsCreated      int
	RepeatablesCreated int
	SkippedDuplicates  int
	RowErrors          int
	PeriodFailures     int
	Error              string
}

// RecordRun inserts or replaces a run record
func (s *Store) RecordRun(ctx context.Context, run *Run) error {
	var finished any
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO ingest_runs
		(id, kind, periods, policy, started_at, finished_at, status, rows_fetched,
		 bibs_created, fields_created, repeatables_created, skipped_duplicates,
		 row_errors, period_failures, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Kind, run.Periods, run.Policy, run.StartedAt.UTC(), finished, run.Status,
		run.RowsFetched, run.BibsCreated, run.FieldsCreated, run.RepeatablesCreated,
		run.SkippedDuplicates, run.RowErrors, run.PeriodFailures, run.Error)

	return err
}

// GetRun returns a run by ID, or nil when it does not exist
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, periods, policy, started_at, finished_at, status, rows_fetched,
		       bibs_created, fields_created, repeatables_created, skipped_duplicates,
		       row_errors, period_failures, COALESCE(error, '')
		FROM ingest_runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RecentRuns returns the latest runs, newest first
func (s *Store) RecentRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(`
		SELECT id, kind, periods, policy, started_at, finished_at, status, rows_fetched,
		       bibs_created, fields_created, repeatables_created, skipped_duplicates,
		       row_errors, period_failures, COALESCE(error, '')
		FROM ingest_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var run Run
	var finished sql.NullTime

	err := sc.Scan(&run.ID, &run.Kind, &run.Periods, &run.Policy, &run.StartedAt, &finished,
		&run.Status, &run.RowsFetched, &run.BibsCreated, &run.FieldsCreated,
		&run.RepeatablesCreated, &run.SkippedDuplicates, &run.RowErrors,
		&run.PeriodFailures, &run.Error)
	if err != nil {
		return nil, err
	}

	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}
