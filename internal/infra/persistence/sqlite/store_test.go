package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"neosweat/pkg/domain"
)

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "records.db")
	ctx := context.Background()
	at := time.Date(2023, 12, 31, 23, 55, 0, 0, time.UTC)

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.Path() != path || store.DB() == nil {
		t.Fatalf("unexpected path/db")
	}
	err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		r := domain.NewRecord(12)
		r.SweatReadings[at] = 1.0
		r.Calibrations[domain.DateOf(at)] = domain.Calibration{Gradient: 2, Intercept: 0.5}
		r.DelayMinutes[domain.DateOf(at)] = 5
		r.Cursor = 3
		if _, err := tx.CreateRecord(r); err != nil {
			return err
		}
		_, err := tx.CreateRecord(domain.NewRecord(13))
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.RunInTransaction(ctx, func(tx domain.Transaction) error { return tx.DeleteRecord(13) }); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if reopened.CountRecords() != 1 {
		t.Fatalf("expected 1 record after reopen, got %d", reopened.CountRecords())
	}
	rec, ok := reopened.GetRecord(12)
	if !ok {
		t.Fatalf("expected record 12")
	}
	if rec.SweatReadings[at] != 1.0 {
		t.Fatalf("sweat readings not restored: %+v", rec.SweatReadings)
	}
	if rec.CalibrationFor(domain.DateOf(at), domain.DefaultCalibration()).Gradient != 2 || rec.DelayFor(domain.DateOf(at)) != 5*time.Minute {
		t.Fatalf("per-day settings not restored: %+v", rec)
	}
	if rec.Cursor != 3 {
		t.Fatalf("expected cursor 3, got %d", rec.Cursor)
	}
}

func TestSQLiteStoreFailedTransactionWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	boom := errors.New("boom")
	err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateRecord(domain.NewRecord(1)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	var n int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 || store.CountRecords() != 0 {
		t.Fatalf("expected empty store, got rows=%d mem=%d", n, store.CountRecords())
	}
}

func TestSQLiteStoreWriteFailureKeepsMemoryUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_ = store.DB().Close()
	err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateRecord(domain.NewRecord(2))
		return err
	})
	if err == nil {
		t.Fatalf("expected error writing to closed database")
	}
	if store.RecordExists(2) {
		t.Fatalf("memory state must not change when the write fails")
	}
}
