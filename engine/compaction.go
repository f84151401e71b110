package engine

import (
	"context"

	"github.com/quivigo/quivigo/persistence"
)

// Compact rebuilds owner's index without tombstones and dangling edges and
// persists the result as a new version. Pending mutations are flushed first
// so nothing queued is lost in the rebuild.
func (c *Coordinator) Compact(ctx context.Context, owner string) error {
	if c.closed.Load() {
		return ErrClosed
	}

	entry, err := c.entry(ctx, owner, false)
	if err != nil {
		return err
	}

	if err := c.flushEntry(ctx, entry, false); err != nil {
		c.opts.Logger.LogCompact(ctx, owner, 0, 0, err)
		return err
	}

	entry.mu.Lock()
	before := entry.index.Stats()
	compacted, err := entry.index.Compacted()
	if err != nil {
		entry.mu.Unlock()
		c.opts.Logger.LogCompact(ctx, owner, before.Size, 0, err)
		return err
	}
	entry.index = compacted
	// Mark dirty with no pending ops so the next flush persists the
	// rebuilt graph as a fresh version.
	entry.dirty = true
	entry.mu.Unlock()

	err = c.flushEntry(ctx, entry, false)
	c.opts.Logger.LogCompact(ctx, owner, before.Size+before.Tombstoned, compacted.Len(), err)
	return err
}

// GCOrphans deletes every stored blob for owner except the currently
// committed one. Orphans accumulate when a process dies between saving a
// snapshot and committing its version.
func (c *Coordinator) GCOrphans(ctx context.Context, owner string) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}

	currentVersion, current, err := c.opts.VersionStore.Current(ctx, owner)
	if err != nil {
		return 0, &PersistenceError{Op: "resolve version", Owner: owner, Err: err}
	}

	refs, err := c.opts.Store.List(ctx, owner)
	if err != nil {
		return 0, &PersistenceError{Op: "list snapshots", Owner: owner, Err: err}
	}

	removed := 0
	for _, ref := range refs {
		if ref == current {
			continue
		}
		// A blob newer than the committed version may belong to a flush
		// that has saved but not yet committed; leave it alone.
		if blob, err := c.opts.Store.Load(ctx, ref); err == nil {
			if env, err := persistence.Decode(blob); err == nil && env.Version > currentVersion {
				continue
			}
		}
		if err := c.opts.Store.Delete(ctx, ref); err != nil {
			return removed, &PersistenceError{Op: "delete snapshot", Owner: owner, Err: err}
		}
		removed++
	}
	return removed, nil
}
