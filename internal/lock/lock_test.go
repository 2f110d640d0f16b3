package lock_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/wheelport/wheelport/internal/lock"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.lock")

	l := lock.New(path)

	if err := l.Acquire(context.Background(), 0); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
}

func TestAcquireTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.lock")

	holder := lock.New(path)
	if err := holder.Acquire(context.Background(), 0); err != nil {
		t.Fatalf("holder Acquire() error: %v", err)
	}
	defer func() { _ = holder.Release() }()

	contender := lock.New(path)

	err := contender.Acquire(context.Background(), 100*time.Millisecond)
	if !errors.Is(err, lock.ErrLockTimeout) {
		t.Errorf("Acquire() error = %v, want ErrLockTimeout", err)
	}
}
