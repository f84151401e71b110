package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore implements Store on the local file system. Each blob is a file
// under root, laid out as <root>/<owner>/<uuid>. Writes go through a temp
// file and rename so readers never observe a partial blob.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at the given directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) path(ref Ref) string {
	return filepath.Join(s.root, filepath.FromSlash(string(ref)))
}

// Save writes data under a fresh ref.
func (s *LocalStore) Save(_ context.Context, owner string, data []byte) (Ref, error) {
	ref, err := NewRef(owner)
	if err != nil {
		return "", err
	}

	target := s.path(ref)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("blobstore: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("blobstore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("blobstore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("blobstore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("blobstore: close: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("blobstore: rename: %w", err)
	}

	return ref, nil
}

// Load reads a blob.
func (s *LocalStore) Load(_ context.Context, ref Ref) ([]byte, error) {
	data, err := os.ReadFile(s.path(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Delete removes a blob. Missing blobs are ignored.
func (s *LocalStore) Delete(_ context.Context, ref Ref) error {
	err := os.Remove(s.path(ref))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns all refs belonging to owner, sorted.
func (s *LocalStore) List(_ context.Context, owner string) ([]Ref, error) {
	dir := filepath.Join(s.root, owner)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	refs := make([]Ref, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		refs = append(refs, Ref(owner+"/"+e.Name()))
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs, nil
}
