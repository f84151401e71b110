// Package blobstore abstracts where versioned index snapshots live. Blobs
// are immutable: every save mints a new ref, and superseded refs are removed
// by garbage collection rather than overwritten.
package blobstore

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// errors.Is(err, ErrNotFound). The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Ref is an opaque handle to a stored blob, of the form "<owner>/<uuid>".
// The owner prefix exists so stores can list and garbage-collect per owner.
type Ref string

// Owner returns the owner segment of the ref, or "" if the ref is malformed.
func (r Ref) Owner() string {
	owner, _, ok := strings.Cut(string(r), "/")
	if !ok {
		return ""
	}
	return owner
}

// NewRef mints a fresh ref for an owner.
func NewRef(owner string) (Ref, error) {
	if owner == "" || strings.Contains(owner, "/") {
		return "", fmt.Errorf("blobstore: invalid owner %q", owner)
	}
	return Ref(owner + "/" + uuid.NewString()), nil
}

// Store persists immutable blobs.
type Store interface {
	// Save writes data under a freshly minted ref for owner.
	Save(ctx context.Context, owner string, data []byte) (Ref, error)

	// Load reads the blob a ref points at.
	Load(ctx context.Context, ref Ref) ([]byte, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, ref Ref) error

	// List returns all refs belonging to owner.
	List(ctx context.Context, owner string) ([]Ref, error)
}
