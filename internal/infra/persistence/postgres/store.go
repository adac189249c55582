// Package postgres is the storage.driver=postgres record store. Records are
// served from the memory store and every committed change is written through
// to a records table before it becomes visible.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"neosweat/internal/infra/persistence/memory"
	"neosweat/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/neosweat?sslmode=disable"
)

// The cursor column duplicates payload->'prev_point' so operators can find
// records that have not converted anything yet without decoding JSON.
const (
	createRecords = `CREATE TABLE IF NOT EXISTS records (
	id BIGINT PRIMARY KEY,
	cursor INTEGER NOT NULL DEFAULT 1,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`
	addCursorColumn = `ALTER TABLE records ADD COLUMN IF NOT EXISTS cursor INTEGER NOT NULL DEFAULT 1`
	selectRecords   = `SELECT id, payload FROM records ORDER BY id`
	upsertRecord    = `INSERT INTO records (id, cursor, payload, updated_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET cursor = EXCLUDED.cursor, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	deleteRecord = `DELETE FROM records WHERE id = $1`
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a memory store whose commits are written to Postgres first.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore connects to dsn, or to a local neosweat database when empty,
// creates the records table if needed and loads every row into memory.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	records, err := bootstrap(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(memory.Snapshot{Records: records})
	return &Store{Store: mem, db: db}, nil
}

func bootstrap(ctx context.Context, db *sql.DB) (map[int]domain.Record, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, ddl := range []string{createRecords, addCursorColumn} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("prepare records table: %w", err)
		}
	}
	rows, err := db.QueryContext(ctx, selectRecords)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := map[int]domain.Record{}
	for rows.Next() {
		var id int
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("load records: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		var rec domain.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", id, err)
		}
		records[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	return records, nil
}

// RunInTransaction commits to Postgres first; a failed write leaves memory untouched.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	return s.RunInTransactionWithCommit(ctx, fn, s.writeThrough)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for tests and maintenance tooling.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) writeThrough(ctx context.Context, changes []domain.Change) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, change := range changes {
		if err = writeChange(ctx, tx, change); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func writeChange(ctx context.Context, tx *sql.Tx, change domain.Change) error {
	if change.Action == domain.ActionDelete {
		if _, err := tx.ExecContext(ctx, deleteRecord, change.ID); err != nil {
			return fmt.Errorf("delete record %d: %w", change.ID, err)
		}
		return nil
	}
	rec := change.After
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %d: %w", change.ID, err)
	}
	if _, err := tx.ExecContext(ctx, upsertRecord, change.ID, rec.Cursor, payload, rec.UpdatedAt); err != nil {
		return fmt.Errorf("write record %d: %w", change.ID, err)
	}
	return nil
}

// OverrideSQLOpen replaces sql.Open for tests and returns the restore func.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}
