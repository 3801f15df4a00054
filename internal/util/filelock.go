package util

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout indicates the lock acquisition timed out
var ErrLockTimeout = errors.New("lock acquisition timed out")

// lockRetryDelay is how often a waiting Lock polls the lock file
const lockRetryDelay = 50 * time.Millisecond

// FileLock provides exclusive, process-wide locking of a storage target.
// The lock is released automatically when the process exits.
type FileLock struct {
	lock *flock.Flock
}

// NewFileLock creates a lock for the given lock file path
func NewFileLock(path string) *FileLock {
	return &FileLock{lock: flock.New(path)}
}

// LockPathFor returns the lock file that guards a database file
func LockPathFor(dbPath string) string {
	return dbPath + ".lock"
}

// TryLock attempts to acquire the lock without blocking.
// Returns false (and no error) when another holder has it.
func (l *FileLock) TryLock() (bool, error) {
	if err := l.ensureDir(); err != nil {
		return false, err
	}

	ok, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", l.Path(), err)
	}
	return ok, nil
}

// Lock blocks until the lock is acquired, the timeout expires or ctx is done
func (l *FileLock) Lock(ctx context.Context, timeout time.Duration) error {
	if err := l.ensureDir(); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := l.lock.TryLockContext(waitCtx, lockRetryDelay)
	if ok {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		return ErrLockTimeout
	}
	return fmt.Errorf("lock %s: %w", l.Path(), err)
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", l.Path(), err)
	}
	return nil
}

// IsLocked returns true if this instance holds the lock
func (l *FileLock) IsLocked() bool {
	return l.lock.Locked()
}

// Path returns the lock file path
func (l *FileLock) Path() string {
	return l.lock.Path()
}

func (l *FileLock) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(l.Path()), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	return nil
}
