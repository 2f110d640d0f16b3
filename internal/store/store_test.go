package store_test

import (
	"os"
	"testing"

	"github.com/wheelport/wheelport/internal/store"
)

func TestSlotAndCompletion(t *testing.T) {
	m, err := store.New(store.WithRoot(t.TempDir()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	slot := m.Slot("tqdm", "4.62.3", "py2.py3-none-any")

	if err := os.MkdirAll(slot, 0o755); err != nil {
		t.Fatal(err)
	}

	if m.IsComplete(slot) {
		t.Error("IsComplete() = true before MarkComplete")
	}

	if err := m.MarkComplete(slot); err != nil {
		t.Fatalf("MarkComplete() error: %v", err)
	}

	if !m.IsComplete(slot) {
		t.Error("IsComplete() = false after MarkComplete")
	}
}

func TestNestedRootIsCreated(t *testing.T) {
	root := t.TempDir() + "/nested/store"

	m, err := store.New(store.WithRoot(root))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if m.Root() != root {
		t.Errorf("Root() = %q, want %q", m.Root(), root)
	}
}
