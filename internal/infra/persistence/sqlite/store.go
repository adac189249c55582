// Package sqlite provides a SQLite-backed record store. Transactions run
// against the in-memory store and each committed change is written through to
// a single records table before the new state is published.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"neosweat/internal/infra/persistence/memory"
	"neosweat/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

// Store persists records to SQLite while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path and hydrates the in-memory
// state from the records table.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "neosweat.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serialises writers per connection; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT id, payload FROM records`)
	if err != nil {
		return fmt.Errorf("select records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{Records: make(map[int]domain.Record)}
	for rows.Next() {
		var (
			id      int
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var rec domain.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return fmt.Errorf("decode record %d: %w", id, err)
		}
		snapshot.Records[id] = rec
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate records: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

// RunInTransaction applies fn within a transaction and writes the resulting
// changes to SQLite. A write failure leaves both the database and memory unchanged.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) error {
	return s.RunInTransactionWithCommit(ctx, fn, s.persist)
}

func (s *Store) persist(ctx context.Context, changes []domain.Change) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, change := range changes {
		switch change.Action {
		case domain.ActionDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, change.ID); err != nil {
				return fmt.Errorf("delete record %d: %w", change.ID, err)
			}
		default:
			data, err := json.Marshal(change.After)
			if err != nil {
				return fmt.Errorf("encode record %d: %w", change.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO records(id, payload, updated_at) VALUES(?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
				change.ID, data, change.After.UpdatedAt.Format(time.RFC3339Nano)); err != nil {
				return fmt.Errorf("upsert record %d: %w", change.ID, err)
			}
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
