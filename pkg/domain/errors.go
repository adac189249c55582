package domain

import "fmt"

// NotFoundError is returned when an operation targets a record id that does not exist.
type NotFoundError struct {
	ID int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record %d not found", e.ID)
}

// AlreadyExistsError is returned when a record is created with an id already in use.
type AlreadyExistsError struct {
	ID int
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("record %d already exists", e.ID)
}

// ParseError reports a malformed timestamp, value, or export row. Line is the
// 1-based export line number and is zero when the input did not come from an export.
type ParseError struct {
	Line  int
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse line %d %q: %v", e.Line, e.Input, e.Err)
	}
	return fmt.Sprintf("parse %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RetrievalError wraps an object-storage failure while fetching a sensor export.
type RetrievalError struct {
	Key string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve export %s: %v", e.Key, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// ValidationError rejects input that parses but cannot be applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
