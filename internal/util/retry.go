package util

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           // Total attempts, including the first one
	InitialWait time.Duration // Initial wait duration (doubled each retry)
	MaxWait     time.Duration // Maximum wait duration between retries

	// Retryable decides whether an error is worth another attempt.
	// nil means RetryAll.
	Retryable func(error) bool

	// OnRetry is called before waiting for the next attempt
	OnRetry func(attempt int, err error)
}

// PeriodRetryConfig returns the retry policy used for one ingestion period:
// three attempts in total, every failure is retried.
func PeriodRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 2 * time.Second,
		MaxWait:     30 * time.Second,
		Retryable:   RetryAll,
	}
}

// RetryAll treats every non-nil error as retryable except context cancellation
func RetryAll(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// RetryWithBackoff executes a function with exponential backoff retry logic
// Returns the result of the function or the final error after all retries exhausted
func RetryWithBackoff[T any](ctx context.Context, cfg *RetryConfig, operation func(attempt int) (T, error), operationName string) (T, error) {
	var result T
	var err error

	if cfg == nil {
		cfg = PeriodRetryConfig()
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = RetryAll
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	waitDuration := cfg.InitialWait

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = operation(attempt)

		if err == nil {
			if attempt > 1 {
				DebugLog("Retry: %s succeeded on attempt %d/%d",
					operationName, attempt, maxAttempts)
			}
			return result, nil
		}

		if !retryable(err) {
			DebugLog("Retry: %s failed with non-retryable error: %v", operationName, err)
			return result, err
		}

		if attempt == maxAttempts {
			WarnLog("Retry: %s failed after %d attempts: %v",
				operationName, maxAttempts, err)
			return result, &RetryError{Attempts: maxAttempts, Err: err}
		}

		DebugLog("Retry: %s failed (attempt %d/%d), retrying in %v: %v",
			operationName, attempt, maxAttempts, waitDuration, err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		if waitDuration > 0 {
			timer := time.NewTimer(waitDuration)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}

		waitDuration *= 2
		if waitDuration > cfg.MaxWait {
			waitDuration = cfg.MaxWait
		}
	}

	return result, fmt.Errorf("unexpected retry loop exit: %w", err)
}

// RetryError is returned once every attempt has failed
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("max retries exceeded (%d attempts): %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}
