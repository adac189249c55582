package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"neosweat/internal/blob/core"
)

func TestGetWithoutSidecarFallsBackToFileInfo(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Exports copied straight into the root have no .meta sidecar.
	if err := os.WriteFile(filepath.Join(root, "7.csv"), []byte("h\n01/01/2024 00:00:00,1.3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, rc, err := s.Get(context.Background(), "7.csv")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, _ := io.ReadAll(rc)
	if info.Size != int64(len(data)) || info.LastModified.IsZero() {
		t.Fatalf("unexpected info %+v", info)
	}
	list, err := s.List(context.Background(), "")
	if err != nil || len(list) != 1 || list[0].Key != "7.csv" {
		t.Fatalf("unexpected list %+v (%v)", list, err)
	}
}

func TestPutWritesSidecarAndHidesIt(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	info, err := s.Put(context.Background(), "a/b.csv", strings.NewReader("abc"), core.PutOptions{ContentType: "text/csv"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.ETag == "" || info.Size != 3 {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := os.Stat(filepath.Join(root, "a", "b.csv"+sidecarExt)); err != nil {
		t.Fatalf("expected sidecar: %v", err)
	}
	list, err := s.List(context.Background(), "a/")
	if err != nil || len(list) != 1 {
		t.Fatalf("sidecar must not be listed: %+v (%v)", list, err)
	}
}

func TestRejectsUnsafeKeys(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "  ", "../escape.csv", "/abs.csv", "x.csv.meta"} {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
	if _, _, err := s.Get(ctx, "missing.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if s.Driver() != core.DriverFilesystem || s.Root() == "" {
		t.Fatalf("unexpected driver/root")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPutIsCreateOnlyAndHidesPartials(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	if _, err := s.Put(ctx, "3.csv", strings.NewReader("h\n"), core.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Put(ctx, "3.csv", strings.NewReader("h\n"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	// A crashed upload leaves a partial behind; it must stay invisible.
	if err := os.WriteFile(filepath.Join(root, "leftover"+partialExt), []byte("x"), 0o644); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	list, err := s.List(ctx, "")
	if err != nil || len(list) != 1 || list[0].Key != "3.csv" {
		t.Fatalf("unexpected list %+v (%v)", list, err)
	}
	existed, err := s.Delete(ctx, "3.csv")
	if err != nil || !existed {
		t.Fatalf("Delete: %v existed=%v", err, existed)
	}
	if _, err := os.Stat(filepath.Join(root, "3.csv"+sidecarExt)); !os.IsNotExist(err) {
		t.Fatalf("sidecar must be removed with the object: %v", err)
	}
}

func TestConcurrentPutsKeepOneWinner(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Put(ctx, "race.csv", strings.NewReader(fmt.Sprintf("writer-%d", i)), core.PutOptions{})
		}()
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		switch {
		case err == nil:
			if winner != -1 {
				t.Fatalf("writers %d and %d both succeeded", winner, i)
			}
			winner = i
		case !errors.Is(err, core.ErrExists):
			t.Fatalf("writer %d: expected ErrExists, got %v", i, err)
		}
	}
	if winner == -1 {
		t.Fatalf("expected one writer to succeed")
	}
	_, rc, err := s.Get(ctx, "race.csv")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, _ := io.ReadAll(rc)
	if string(data) != fmt.Sprintf("writer-%d", winner) {
		t.Fatalf("stored body %q does not belong to winner %d", data, winner)
	}
	list, err := s.List(ctx, "")
	if err != nil || len(list) != 1 {
		t.Fatalf("partials must be cleaned up: %+v (%v)", list, err)
	}
}
