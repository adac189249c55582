package core

import (
	"context"
	"encoding/json"
	"expvar"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"neosweat/internal/infra/persistence/memory"
	"neosweat/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreDrivers(t *testing.T) {
	ctx := context.Background()
	store, err := OpenPersistentStore(ctx, StorageConfig{Driver: StorageMemory})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	path := filepath.Join(t.TempDir(), "records.db")
	store, err = OpenPersistentStore(ctx, StorageConfig{SQLitePath: path})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	sq, ok := store.(*sqlite.Store)
	if !ok || sq.Path() != path {
		t.Fatalf("expected sqlite store at %s, got %T", path, store)
	}
	_ = sq.Close()

	if _, err := OpenPersistentStore(ctx, StorageConfig{Driver: "mongo"}); err == nil || !strings.Contains(err.Error(), "mongo") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "neosweat_service_metrics_") {
		t.Fatalf("unexpected name %s", rec.Name())
	}
	ctx := context.Background()
	rec.Observe(ctx, "add_record", true, 2*time.Millisecond)
	rec.Observe(ctx, "add_record", false, time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)
	rec.ObservePipeline(ctx, PipelineResult{ExportFound: true, RowsRead: 5, RowsConverted: 3})
	rec.ObservePipeline(ctx, PipelineResult{})

	snap := rec.Snapshot()
	got := snap.Operations["add_record"]
	if got.Success != 1 || got.Error != 1 || got.DurationMS != 3 {
		t.Fatalf("unexpected operation totals %+v", got)
	}
	if len(snap.Operations) != 1 {
		t.Fatalf("unnamed operations must be ignored: %+v", snap.Operations)
	}
	want := PipelineTotals{Runs: 2, MissingExports: 1, RowsRead: 5, RowsConverted: 3}
	if snap.Pipeline != want {
		t.Fatalf("pipeline totals %+v, want %+v", snap.Pipeline, want)
	}

	published := expvar.Get(rec.Name())
	if published == nil {
		t.Fatalf("expected recorder to be published")
	}
	var decoded ExpvarMetricsSnapshot
	if err := json.Unmarshal([]byte(published.String()), &decoded); err != nil {
		t.Fatalf("decode published value: %v", err)
	}
	if decoded.Pipeline.RowsConverted != 3 {
		t.Fatalf("expected published rows converted, got %d", decoded.Pipeline.RowsConverted)
	}
}
