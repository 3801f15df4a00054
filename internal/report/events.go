package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/franz/catstats/internal/store"
	"github.com/spf13/afero"
)

// EventType represents the type of event
type EventType string

const (
	EventFetch         EventType = "fetch"
	EventPage          EventType = "page"
	EventNormalize     EventType = "normalize"
	EventCommit        EventType = "commit"
	EventSkip          EventType = "skip"
	EventRowError      EventType = "row_error"
	EventRetry         EventType = "retry"
	EventPeriodFailure EventType = "period_failure"
	EventRun           EventType = "run"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// ParseLevel parses a configured level name, defaulting to info
func ParseLevel(s string) EventLevel {
	level := EventLevel(s)
	if _, ok := levelPriority[level]; ok {
		return level
	}
	return LevelInfo
}

// Event represents a single event in an ingest run
type Event struct {
	Timestamp time.Time         `json:"ts"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	RunID     string            `json:"run_id,omitempty"`
	Period    string            `json:"period,omitempty"`
	MMSID     string            `json:"mmsid,omitempty"`
	Row       *int              `json:"row,omitempty"`
	Attempt   int               `json:"attempt,omitempty"`
	Count     int               `json:"count,omitempty"`
	Status    string            `json:"status,omitempty"`
	Duration  int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     afero.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event log in outputDir on fs.
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(fs afero.Fs, outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := fs.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(outputDir, fmt.Sprintf("events-%s.jsonl", timestamp))

	file, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

func errLevel(err error, ok EventLevel) (EventLevel, string) {
	if err != nil {
		return LevelError, err.Error()
	}
	return ok, ""
}

// LogFetch logs the assembled fetch of one period
func (l *EventLogger) LogFetch(runID, period string, pages, rows int, duration time.Duration, err error) error {
	level, msg := errLevel(err, LevelInfo)
	return l.Log(&Event{
		Level:    level,
		Event:    EventFetch,
		RunID:    runID,
		Period:   period,
		Count:    rows,
		Duration: duration.Milliseconds(),
		Error:    msg,
		Extra: map[string]string{
			"pages": fmt.Sprintf("%d", pages),
		},
	})
}

// LogPage logs one fetched report page
func (l *EventLogger) LogPage(runID, period string, page, rows int) error {
	return l.Log(&Event{
		Level:  LevelDebug,
		Event:  EventPage,
		RunID:  runID,
		Period: period,
		Count:  rows,
		Extra: map[string]string{
			"page": fmt.Sprintf("%d", page),
		},
	})
}

// LogNormalize logs the normalization of one period
func (l *EventLogger) LogNormalize(runID, period string, records, rowErrors int) error {
	level := LevelInfo
	if rowErrors > 0 {
		level = LevelWarning
	}
	return l.Log(&Event{
		Level:  level,
		Event:  EventNormalize,
		RunID:  runID,
		Period: period,
		Count:  records,
		Extra: map[string]string{
			"row_errors": fmt.Sprintf("%d", rowErrors),
		},
	})
}

// LogCommit logs the commit of one period
func (l *EventLogger) LogCommit(runID, period string, stats store.CommitStats, duration time.Duration, err error) error {
	level, msg := errLevel(err, LevelInfo)
	return l.Log(&Event{
		Level:    level,
		Event:    EventCommit,
		RunID:    runID,
		Period:   period,
		Count:    stats.BibsCreated,
		Duration: duration.Milliseconds(),
		Error:    msg,
		Extra: map[string]string{
			"fields_created":      fmt.Sprintf("%d", stats.FieldsCreated),
			"repeatables_created": fmt.Sprintf("%d", stats.RepeatablesCreated),
			"skipped_duplicates":  fmt.Sprintf("%d", stats.SkippedDuplicates),
		},
	})
}

// LogSkip logs bib records skipped because they were already stored
func (l *EventLogger) LogSkip(runID, period string, skipped int) error {
	return l.Log(&Event{
		Level:  LevelInfo,
		Event:  EventSkip,
		RunID:  runID,
		Period: period,
		Count:  skipped,
	})
}

// LogRowError logs a row that could not be normalized
func (l *EventLogger) LogRowError(runID, period string, index int, mmsid string, err error) error {
	_, msg := errLevel(err, LevelError)
	return l.Log(&Event{
		Level:  LevelError,
		Event:  EventRowError,
		RunID:  runID,
		Period: period,
		MMSID:  mmsid,
		Row:    &index,
		Error:  msg,
	})
}

// LogRetry logs a failed attempt that will be retried
func (l *EventLogger) LogRetry(runID, period string, attempt int, err error) error {
	_, msg := errLevel(err, LevelWarning)
	return l.Log(&Event{
		Level:   LevelWarning,
		Event:   EventRetry,
		RunID:   runID,
		Period:  period,
		Attempt: attempt,
		Error:   msg,
	})
}

// LogPeriodFailure logs a period that exhausted its attempts
func (l *EventLogger) LogPeriodFailure(runID, period string, attempts int, err error) error {
	_, msg := errLevel(err, LevelError)
	return l.Log(&Event{
		Level:   LevelError,
		Event:   EventPeriodFailure,
		RunID:   runID,
		Period:  period,
		Attempt: attempts,
		Error:   msg,
	})
}

// LogRun logs the end of a run
func (l *EventLogger) LogRun(runID, kind, status string, duration time.Duration, err error) error {
	level, msg := errLevel(err, LevelInfo)
	if err == nil && status == store.RunCompletedWithFailures {
		level = LevelWarning
	}
	return l.Log(&Event{
		Level:    level,
		Event:    EventRun,
		RunID:    runID,
		Status:   status,
		Duration: duration.Milliseconds(),
		Error:    msg,
		Extra: map[string]string{
			"kind": kind,
		},
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
