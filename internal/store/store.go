// Package store implements the shared content-addressed store layout,
// spec.md section 4.10: store_root/name/version/tag/name-version.data/...,
// with a sentinel file making repeat installs a near-noop.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
)

// sentinelName is the file written last under the wheel's own lock; its
// presence is the sole idempotency signal for a store slot.
const sentinelName = ".monotrail-install-complete"

// Option configures a Manager.
type Option func(*Manager)

// WithRoot overrides the store root directory. Overrides platform default
// and WHEELPORT_STORE_DIR.
func WithRoot(dir string) Option {
	return func(m *Manager) {
		if dir != "" {
			m.root = dir
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager locates and manages slots in the shared store.
type Manager struct {
	root   string
	logger *slog.Logger
}

// New creates a store Manager. If no root is given via WithRoot or
// WHEELPORT_STORE_DIR, a platform-appropriate cache directory is used.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{logger: slog.Default()}

	for _, opt := range opts {
		opt(m)
	}

	if m.root == "" {
		m.root = defaultStoreRoot()
	}

	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root %s: %w", m.root, err)
	}

	return m, nil
}

// Root is the store's base directory.
func (m *Manager) Root() string {
	return m.root
}

// Slot resolves the directory for one (name, version, tag) artifact. The
// tag string is typically the wheel's compatibility tag triple joined with
// "-", so distinct builds of the same (name, version) do not collide.
func (m *Manager) Slot(name, version, tag string) string {
	return filepath.Join(m.root, name, version, tag)
}

// IsComplete reports whether slot already has a finished install (the
// sentinel is present); this is the whole of the idempotency check for
// store-mode installs (spec.md invariant 4 and scenario S6).
func (m *Manager) IsComplete(slot string) bool {
	_, err := os.Stat(filepath.Join(slot, sentinelName))
	return err == nil
}

// MarkComplete writes the sentinel, signaling the slot is fully installed.
// Callers must hold the slot's lock when calling this and must call it last.
func (m *Manager) MarkComplete(slot string) error {
	path := filepath.Join(slot, sentinelName)

	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return fmt.Errorf("writing sentinel %s: %w", path, err)
	}

	m.logger.Debug("store slot complete", slog.String("slot", slot))

	return nil
}

// LockPath is the path of the advisory lock guarding slot.
func (m *Manager) LockPath(slot string) string {
	return filepath.Join(slot, ".wheelport.lock")
}

// defaultStoreRoot mirrors the teacher's platform cache directory
// resolution, generalized from a single wheels/ cache to the shared store.
// Priority: WHEELPORT_STORE_DIR > platform default.
func defaultStoreRoot() string {
	if dir := os.Getenv("WHEELPORT_STORE_DIR"); dir != "" {
		return dir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "wheelport", "store")
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Caches", "wheelport", "store")
	}

	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "wheelport", "store")
	}

	return filepath.Join(home, ".cache", "wheelport", "store")
}
