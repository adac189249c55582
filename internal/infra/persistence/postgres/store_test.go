package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"neosweat/pkg/domain"
)

func openMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	return db, mock
}

func expectBootstrap(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS records").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER TABLE records ADD COLUMN IF NOT EXISTS cursor").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, payload FROM records").WillReturnRows(rows)
}

func TestNewStoreHydratesFromRecordsTable(t *testing.T) {
	_, mock := openMock(t)
	rec := domain.NewRecord(7)
	rec.Notes["ward"] = "NICU"
	payload, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	expectBootstrap(mock, sqlmock.NewRows([]string{"id", "payload"}).AddRow(7, payload))

	store, err := NewStore(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	got, ok := store.GetRecord(7)
	if !ok || got.Notes["ward"] != "NICU" {
		t.Fatalf("expected hydrated record, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunInTransactionWritesChanges(t *testing.T) {
	_, mock := openMock(t)
	expectBootstrap(mock, sqlmock.NewRows([]string{"id", "payload"}))
	store, err := NewStore(context.Background(), "ignored", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO records").WithArgs(3, 1, sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateRecord(domain.NewRecord(3))
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM records").WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	if err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error { return tx.DeleteRecord(3) }); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if store.RecordExists(3) {
		t.Fatalf("record should be deleted")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunInTransactionRollsBackOnWriteFailure(t *testing.T) {
	_, mock := openMock(t)
	expectBootstrap(mock, sqlmock.NewRows([]string{"id", "payload"}))
	store, err := NewStore(context.Background(), "ignored", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO records").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()
	err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateRecord(domain.NewRecord(4))
		return err
	})
	if err == nil {
		t.Fatalf("expected write failure")
	}
	if store.RecordExists(4) {
		t.Fatalf("memory must not publish a failed write")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNewStoreSurfacesBootstrapErrors(t *testing.T) {
	_, mock := openMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS records").WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()
	if _, err := NewStore(context.Background(), "", nil); err == nil {
		t.Fatalf("expected ddl error")
	}

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("bad dsn") })
	defer restore()
	if _, err := NewStore(context.Background(), "x", nil); err == nil {
		t.Fatalf("expected open error")
	}
}
