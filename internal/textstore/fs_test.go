package textstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "texts")
	store, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS() error = %v", err)
	}
	ctx := context.Background()

	key, err := store.Save(ctx, "report-1", "Отчёт по лабораторной работе")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if key != "report-1.txt" {
		t.Errorf("Save() key = %q, want report-1.txt", key)
	}

	got, err := store.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != "Отчёт по лабораторной работе" {
		t.Errorf("Load() = %q", got)
	}

	if _, err := store.Save(ctx, "report-1", "replaced"); err != nil {
		t.Fatalf("Save() overwrite error = %v", err)
	}
	if got, _ := store.Load(ctx, key); got != "replaced" {
		t.Errorf("Load() after overwrite = %q, want replaced", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want 1", len(entries))
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after Delete error = %v, want %v", err, ErrNotFound)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("Delete() of missing key error = %v", err)
	}
}

func TestFSRejectsUnsafeKeys(t *testing.T) {
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS() error = %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"", ".", "..", "../secret.txt", "a/b.txt"} {
		if _, err := store.Load(ctx, key); err == nil || errors.Is(err, ErrNotFound) {
			t.Errorf("Load(%q) error = %v, want invalid key", key, err)
		}
		if err := store.Delete(ctx, key); err == nil {
			t.Errorf("Delete(%q) succeeded, want invalid key", key)
		}
	}
	if _, err := store.Save(ctx, "../escape", "x"); err == nil {
		t.Error("Save() with a traversing report ID succeeded")
	}
}
