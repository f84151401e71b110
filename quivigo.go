package quivigo

import (
	"context"

	"github.com/quivigo/quivigo/engine"
	"github.com/quivigo/quivigo/hnsw"
)

// SearchResult is a single search hit, nearest first.
type SearchResult struct {
	ID       uint64
	Distance float32
}

// Stats summarizes one owner's cached index.
type Stats = engine.OwnerStats

// Engine is the top-level entry point. It is safe for concurrent use.
type Engine struct {
	coord *engine.Coordinator
}

// New creates an Engine for vectors of the given dimension.
func New(dimension int, opts ...Option) (*Engine, error) {
	fns := make([]func(o *engine.Options), len(opts))
	for i, opt := range opts {
		fns[i] = opt
	}
	coord, err := engine.New(dimension, fns...)
	if err != nil {
		return nil, translateError(err)
	}
	return &Engine{coord: coord}, nil
}

// Insert queues a vector write for owner. The write is searchable
// immediately and becomes durable at the next flush. Inserting an existing
// id overwrites it.
func (e *Engine) Insert(ctx context.Context, owner string, id uint64, vector []float32) error {
	return translateError(e.coord.QueueInsert(ctx, owner, id, vector))
}

// Delete queues a vector removal for owner.
func (e *Engine) Delete(ctx context.Context, owner string, id uint64) error {
	return translateError(e.coord.QueueDelete(ctx, owner, id))
}

// Search returns the k nearest neighbors of query for owner, sorted
// ascending by distance. Pending writes from this process are visible.
func (e *Engine) Search(ctx context.Context, owner string, query []float32, k int) ([]SearchResult, error) {
	return e.SearchWithEF(ctx, owner, query, k, 0)
}

// SearchWithEF is Search with an explicit candidate-list size. Larger ef
// trades latency for recall; ef <= 0 uses the configured default.
func (e *Engine) SearchWithEF(ctx context.Context, owner string, query []float32, k, ef int) ([]SearchResult, error) {
	results, err := e.coord.Search(ctx, owner, query, k, ef)
	if err != nil {
		return nil, translateError(err)
	}
	return toSearchResults(results), nil
}

// Flush synchronously persists owner's pending writes as a new snapshot
// version.
func (e *Engine) Flush(ctx context.Context, owner string) error {
	return translateError(e.coord.Flush(ctx, owner))
}

// FlushAll synchronously persists every owner's pending writes.
func (e *Engine) FlushAll(ctx context.Context) error {
	return translateError(e.coord.FlushAll(ctx))
}

// LoadIndex warms owner's index from the blob store ahead of traffic.
func (e *Engine) LoadIndex(ctx context.Context, owner string) error {
	return translateError(e.coord.LoadIndex(ctx, owner))
}

// Compact rebuilds owner's index without deleted vectors and persists the
// result.
func (e *Engine) Compact(ctx context.Context, owner string) error {
	return translateError(e.coord.Compact(ctx, owner))
}

// GCOrphans removes owner's stored snapshots that are no longer referenced,
// returning how many blobs were deleted.
func (e *Engine) GCOrphans(ctx context.Context, owner string) (int, error) {
	removed, err := e.coord.GCOrphans(ctx, owner)
	return removed, translateError(err)
}

// EvictOwner flushes owner if needed and drops it from the cache.
func (e *Engine) EvictOwner(ctx context.Context, owner string) error {
	return translateError(e.coord.EvictOwner(ctx, owner))
}

// Stats returns the stats of one cached owner.
func (e *Engine) Stats(owner string) (Stats, bool) {
	return e.coord.Stats(owner)
}

// Owners returns the owners currently cached.
func (e *Engine) Owners() []string {
	return e.coord.Owners()
}

// Close flushes every dirty owner and shuts the engine down.
func (e *Engine) Close(ctx context.Context) error {
	return translateError(e.coord.Close(ctx))
}

func toSearchResults(results []hnsw.Result) []SearchResult {
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{ID: r.ID, Distance: r.Distance}
	}
	return out
}
