// Package memory provides an in-memory implementation of the record store used
// directly for tests and ephemeral environments, and as the transactional core
// of the durable sqlite and postgres drivers.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"neosweat/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Record aliases domain.Record for in-memory persistence operations.
	Record = domain.Record
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
)

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Records map[int]Record `json:"records"`
}

// CommitFunc is invoked with the changes of a transaction after fn succeeds and
// before the new state becomes visible. A non-nil error aborts the commit.
type CommitFunc func(ctx context.Context, changes []Change) error

type memoryState struct {
	records map[int]Record
}

func newMemoryState() memoryState {
	return memoryState{records: make(map[int]Record)}
}

func (s memoryState) clone() memoryState {
	out := memoryState{records: make(map[int]Record, len(s.records))}
	for id, r := range s.records {
		out.records[id] = r.Clone()
	}
	return out
}

// sorted returns copies of all records ordered by id.
func (s memoryState) sorted() []Record {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Store provides an in-memory transactional store for records.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an empty in-memory store backed by the provided rules
// engine. A nil engine evaluates no rules.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// RulesEngine returns the engine evaluated before every commit.
func (s *Store) RulesEngine() *domain.RulesEngine {
	return s.engine
}

// SetNowFunc overrides the clock used for CreatedAt/UpdatedAt stamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Records: make(map[int]Record, len(s.state.records))}
	for id, r := range s.state.records {
		snap.Records[id] = r.Clone()
	}
	return snap
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	state := newMemoryState()
	for id, r := range snapshot.Records {
		r.ID = id
		r.Normalize()
		state.records[id] = r.Clone()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// stateView exposes a transaction's working state to rules.
type stateView struct {
	state *memoryState
}

func (v stateView) ListRecords() []Record { return v.state.sorted() }

func (v stateView) FindRecord(id int) (Record, bool) {
	r, ok := v.state.records[id]
	if !ok {
		return Record{}, false
	}
	return r.Clone(), true
}

// transaction represents a mutation set applied to a cloned store state.
type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error {
	return s.RunInTransactionWithCommit(ctx, fn, nil)
}

// RunInTransactionWithCommit executes fn within a transactional copy of the
// store state, evaluates the rules engine against the result, and calls commit
// with the captured changes before publishing the new state. Durable drivers
// use commit to write through; if it fails the in-memory state is left untouched.
func (s *Store) RunInTransactionWithCommit(ctx context.Context, fn func(tx Transaction) error, commit CommitFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.changes) > 0 {
		res, err := s.engine.Evaluate(ctx, stateView{state: &tx.state}, tx.changes)
		if err != nil {
			return err
		}
		if res.HasViolations() {
			return domain.RuleViolationError{Result: res}
		}
	}
	if commit != nil && len(tx.changes) > 0 {
		if err := commit(ctx, tx.changes); err != nil {
			return err
		}
	}
	s.state = tx.state
	return nil
}

// GetRecord returns a copy of the record with id.
func (s *Store) GetRecord(id int) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.records[id]
	if !ok {
		return Record{}, false
	}
	return r.Clone(), true
}

// ListRecords returns copies of all records ordered by id.
func (s *Store) ListRecords() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.sorted()
}

// RecordExists reports whether id is stored.
func (s *Store) RecordExists(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.state.records[id]
	return ok
}

// CountRecords returns the number of stored records.
func (s *Store) CountRecords() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.records)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// FindRecord exposes record lookup within the transaction scope.
func (tx *transaction) FindRecord(id int) (Record, bool) {
	r, ok := tx.state.records[id]
	if !ok {
		return Record{}, false
	}
	return r.Clone(), true
}

// CreateRecord stores a new record within the transaction.
func (tx *transaction) CreateRecord(r Record) (Record, error) {
	if r.ID <= 0 {
		return Record{}, &domain.ValidationError{Field: "id", Reason: "must be positive"}
	}
	if _, exists := tx.state.records[r.ID]; exists {
		return Record{}, &domain.AlreadyExistsError{ID: r.ID}
	}
	r.Normalize()
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.records[r.ID] = r.Clone()
	after := r.Clone()
	tx.recordChange(Change{Action: domain.ActionCreate, ID: r.ID, After: &after})
	return r.Clone(), nil
}

// UpdateRecord mutates a record using the provided mutator function.
func (tx *transaction) UpdateRecord(id int, mutator func(*Record) error) (Record, error) {
	current, ok := tx.state.records[id]
	if !ok {
		return Record{}, &domain.NotFoundError{ID: id}
	}
	before := current.Clone()
	working := current.Clone()
	if err := mutator(&working); err != nil {
		return Record{}, err
	}
	working.ID = id
	working.CreatedAt = before.CreatedAt
	working.UpdatedAt = tx.now
	working.Normalize()
	tx.state.records[id] = working.Clone()
	after := working.Clone()
	tx.recordChange(Change{Action: domain.ActionUpdate, ID: id, Before: &before, After: &after})
	return working, nil
}

// DeleteRecord removes a record from the transaction state.
func (tx *transaction) DeleteRecord(id int) error {
	current, ok := tx.state.records[id]
	if !ok {
		return &domain.NotFoundError{ID: id}
	}
	delete(tx.state.records, id)
	before := current.Clone()
	tx.recordChange(Change{Action: domain.ActionDelete, ID: id, Before: &before})
	return nil
}
