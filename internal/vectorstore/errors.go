package vectorstore

import "fmt"

// PreconditionError rejects an Insert before anything is written. It is
// never retried.
type PreconditionError struct {
	Reason string
	// Err is an optional sentinel such as ErrEmptyInput.
	Err error
}

func (e *PreconditionError) Error() string {
	return "store precondition failed: " + e.Reason
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// SchemaMismatchError is returned when a collection already exists with a
// different vector dimension than requested.
type SchemaMismatchError struct {
	Collection string
	Existing   int
	Requested  int
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("collection %s has dimension %d, requested %d", e.Collection, e.Existing, e.Requested)
}
