package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MrWong99/solace/internal/storage"
)

func backends(t *testing.T) map[string]storage.Store {
	t.Helper()
	f, err := storage.NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	return map[string]storage.Store{
		"memory": storage.NewMemory(),
		"zero":   &storage.Memory{},
		"file":   f,
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "nope")
			if !errors.Is(err, storage.ErrNotFound) {
				t.Fatalf("want ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_SetGet(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Set(ctx, "chat_messages:a/b", "one"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.Set(ctx, "chat_messages:a/b", "two"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx, "chat_messages:a/b")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != "two" {
				t.Errorf("Get = %q, want %q", got, "two")
			}
		})
	}
}

func TestFile_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	f, err := storage.NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.Set(context.Background(), "k", string(rune('a'+i))); err != nil {
				t.Errorf("Set: %v", err)
			}
		}()
	}
	wg.Wait()

	matches, err := filepath.Glob(filepath.Join(dir, ".tmp-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("want 1 file in dir, got %d", len(entries))
	}
}

func TestFile_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	f1, err := storage.NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if err := f1.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	f2, err := storage.NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	got, err := f2.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Fatalf("Get = %q, %v; want %q, nil", got, err, "v")
	}
}

func TestNewFile_EmptyDir(t *testing.T) {
	if _, err := storage.NewFile(""); err == nil {
		t.Fatal("want error for empty dir")
	}
}

func TestStore_CloseThroughInterface(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Set(context.Background(), "k", "v"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
	}
}
