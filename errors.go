package quivigo

import (
	"errors"
	"fmt"

	"github.com/quivigo/quivigo/blobstore"
	"github.com/quivigo/quivigo/engine"
	"github.com/quivigo/quivigo/hnsw"
	"github.com/quivigo/quivigo/persistence"
)

var (
	// ErrNotFound is returned when an owner has no index, cached or
	// persisted.
	ErrNotFound = errors.New("index not found")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")

	// ErrCorruptSnapshot is returned when a persisted snapshot fails
	// validation.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// ErrInvalidK is returned when a search requests a non-positive k.
	ErrInvalidK = errors.New("k must be positive")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// PersistenceError reports a blob store or version store failure.
//
// The original underlying error can be accessed via errors.Unwrap.
type PersistenceError struct {
	Op    string
	Owner string
	cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure: %s for owner %q: %v", e.Op, e.Owner, e.cause)
}

func (e *PersistenceError) Unwrap() error { return e.cause }

// translateError normalizes internal errors into the package's public error
// surface.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, engine.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if errors.Is(err, engine.ErrIndexNotFound) || errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, persistence.ErrCorruptSnapshot) {
		return fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	if errors.Is(err, hnsw.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	var dm *hnsw.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	var pe *engine.PersistenceError
	if errors.As(err, &pe) {
		return &PersistenceError{Op: pe.Op, Owner: pe.Owner, cause: err}
	}

	return err
}
