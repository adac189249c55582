package domain

import "context"

// Action describes the type of mutation recorded in a Change.
type Action string

// Supported change actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change captures a single record mutation applied inside a transaction.
// Before is nil for creates and After is nil for deletes.
type Change struct {
	Action Action
	ID     int
	Before *Record
	After  *Record
}

// Transaction exposes the record operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	CreateRecord(Record) (Record, error)
	UpdateRecord(id int, mutator func(*Record) error) (Record, error)
	DeleteRecord(id int) error
	FindRecord(id int) (Record, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	GetRecord(id int) (Record, bool)
	ListRecords() []Record
	RecordExists(id int) bool
	CountRecords() int
}
