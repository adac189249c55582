package integration

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"neosweat/internal/blob"
	"neosweat/internal/core"
	"neosweat/internal/infra/persistence/sqlite"
	"neosweat/pkg/domain"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

// TestIntegrationSmoke runs the full create, configure, upload and read cycle
// against each in-process record store and blob driver.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()
	today := fixedClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))

	storeVariants := []struct {
		name string
		open func(t *testing.T) domain.PersistentStore
	}{
		{
			name: "memory-store",
			open: func(t *testing.T) domain.PersistentStore {
				s, err := core.OpenPersistentStore(ctx, core.StorageConfig{Driver: core.StorageMemory})
				if err != nil {
					t.Fatalf("open memory store: %v", err)
				}
				return s
			},
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T) domain.PersistentStore {
				s, err := core.OpenPersistentStore(ctx, core.StorageConfig{
					Driver:     core.StorageSQLite,
					SQLitePath: filepath.Join(t.TempDir(), "records.db"),
				})
				if err != nil {
					t.Fatalf("open sqlite store: %v", err)
				}
				t.Cleanup(func() { _ = s.(*sqlite.Store).Close() })
				return s
			},
		},
	}
	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{name: "memory-blob", open: func(*testing.T) blob.Store { return blob.NewMemory() }},
		{name: "fs-blob", open: func(t *testing.T) blob.Store {
			s, err := blob.NewFilesystem(t.TempDir())
			if err != nil {
				t.Fatalf("open fs blob: %v", err)
			}
			return s
		}},
		{name: "s3-blob", open: func(*testing.T) blob.Store { return blob.NewMockS3ForTests() }},
	}

	for _, sv := range storeVariants {
		for _, bv := range blobVariants {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				svc := core.NewService(sv.open(t), bv.open(t), core.WithClock(today), core.WithExportLocation("exports/", "csv"))

				if _, err := svc.AddRecord(ctx, domain.NewRecord(1)); err != nil {
					t.Fatalf("add record: %v", err)
				}
				if _, err := svc.AddDelay(ctx, 1, 10); err != nil {
					t.Fatalf("add delay: %v", err)
				}
				if _, err := svc.AddCalibration(ctx, 1, 2, 0.2); err != nil {
					t.Fatalf("add calibration: %v", err)
				}

				first := "Time,Current\n01/01/2024 00:00:00,1.3\n01/01/2024 00:20:00,1.5\n"
				if _, err := blob.Replace(ctx, svc.Blobs(), "exports/1.csv", strings.NewReader(first), blob.PutOptions{ContentType: "text/csv"}); err != nil {
					t.Fatalf("upload: %v", err)
				}
				rec, err := svc.GetRecord(ctx, 1)
				if err != nil {
					t.Fatalf("get record: %v", err)
				}
				shifted := time.Date(2023, 12, 31, 23, 50, 0, 0, time.UTC)
				if rec.Cursor != 2 || math.Abs(rec.SweatReadings[shifted]-0.55) > 1e-9 {
					t.Fatalf("unexpected first pass %+v", rec)
				}

				grown := first + "01/01/2024 00:40:00,1.7\n"
				if _, err := blob.Replace(ctx, svc.Blobs(), "exports/1.csv", strings.NewReader(grown), blob.PutOptions{}); err != nil {
					t.Fatalf("re-upload: %v", err)
				}
				res, err := svc.RefreshSweatReadings(ctx, 1)
				if err != nil {
					t.Fatalf("refresh: %v", err)
				}
				if res.PreviousCursor != 2 || res.Cursor != 3 || res.RowsConverted != 2 {
					t.Fatalf("unexpected incremental run %+v", res)
				}
				rec, _ = svc.GetRecord(ctx, 1)
				if len(rec.SweatReadings) != 3 {
					t.Fatalf("expected three readings, got %d", len(rec.SweatReadings))
				}

				if err := svc.DeleteRecord(ctx, 1); err != nil {
					t.Fatalf("delete: %v", err)
				}
				if svc.CountRecords(ctx) != 0 {
					t.Fatalf("expected empty store")
				}
			})
		}
	}
}

// TestSQLiteCursorSurvivesRestart reopens the database between pipeline runs.
func TestSQLiteCursorSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")
	blobs := blob.NewMemory()
	export := "Time,Current\n01/01/2024 00:00:00,1.3\n01/01/2024 00:20:00,1.5\n01/01/2024 00:40:00,1.7\n"
	if _, err := blobs.Put(ctx, "5.csv", strings.NewReader(export), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	open := func() (*sqlite.Store, *core.Service) {
		s, err := sqlite.NewStore(path, core.NewDefaultRulesEngine())
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		return s, core.NewService(s, blobs)
	}

	store, svc := open()
	if _, err := svc.AddRecord(ctx, domain.NewRecord(5)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.GetRecord(ctx, 5); err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = store.Close()

	store, svc = open()
	defer func() { _ = store.Close() }()
	res, err := svc.RefreshSweatReadings(ctx, 5)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.PreviousCursor != 3 || res.Cursor != 3 || res.RowsConverted != 1 {
		t.Fatalf("expected only the last row to be reconverted, got %+v", res)
	}
}
