package engine

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a coordinator after Close.
var ErrClosed = errors.New("engine: coordinator closed")

// ErrIndexNotFound is returned when an owner has no cached index and no
// persisted snapshot.
var ErrIndexNotFound = errors.New("engine: index not found")

// PersistenceError wraps a blob store or version store failure with the
// operation and owner it occurred for.
type PersistenceError struct {
	Op    string
	Owner string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("engine: %s failed for owner %q: %v", e.Op, e.Owner, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
