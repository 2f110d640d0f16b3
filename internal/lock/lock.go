// Package lock provides the advisory exclusive file lock that coordinates
// concurrent installs into a shared environment (spec.md section 4.9).
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when Acquire's context deadline (or an
// explicit timeout) elapses before the lock is obtained.
var ErrLockTimeout = errors.New("lock timeout")

// pollInterval is how often a blocked Acquire retries, matching flock's own
// TryLockContext polling contract.
const pollInterval = 50 * time.Millisecond

// Lock wraps an advisory, exclusive, path-based file lock.
type Lock struct {
	fl *flock.Flock
}

// New returns a Lock backed by path, creating the lock file's parent
// directories is the caller's responsibility (the lock itself creates the
// file lazily on first Acquire, matching flock's own behavior).
func New(path string) *Lock {
	return &Lock{fl: flock.New(path)}
}

// Acquire blocks until the lock is held or ctx is done. If timeout is
// positive, acquisition additionally fails with ErrLockTimeout once that
// much time has elapsed, even if ctx has no deadline of its own.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	locked, err := l.fl.TryLockContext(ctx, pollInterval)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, l.fl.Path())
		}

		return fmt.Errorf("acquiring lock %s: %w", l.fl.Path(), err)
	}

	if !locked {
		return fmt.Errorf("acquiring lock %s: not locked", l.fl.Path())
	}

	return nil
}

// Release unlocks the file.
func (l *Lock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("releasing lock %s: %w", l.fl.Path(), err)
	}

	return nil
}

// Path is the lock file's path, e.g. for logging.
func (l *Lock) Path() string {
	return l.fl.Path()
}
