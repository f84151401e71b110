// Package engine coordinates per-owner vector indexes: it batches queued
// mutations, flushes them to versioned snapshots in a blob store, serves
// searches with read-your-writes semantics, and evicts idle owners.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/quivigo/quivigo/blobstore"
	"github.com/quivigo/quivigo/codec"
	"github.com/quivigo/quivigo/hnsw"
	"github.com/quivigo/quivigo/persistence"
)

// sweepConcurrency bounds how many owners a single sweep flushes in parallel.
const sweepConcurrency = 4

// Coordinator manages the cached index and write batch of every owner.
type Coordinator struct {
	opts Options

	mu      sync.RWMutex
	entries map[string]*ownerEntry

	loads        singleflight.Group
	retryLimiter *rate.Limiter

	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a Coordinator for vectors of the given dimension and starts
// its background sweeper.
func New(dimension int, optFns ...func(o *Options)) (*Coordinator, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Dimension = dimension

	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("engine: invalid dimension: %d", opts.Dimension)
	}
	if opts.Store == nil {
		opts.Store = blobstore.NewMemoryStore()
	}
	if opts.VersionStore == nil {
		opts.VersionStore = NewMemoryVersionStore()
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default()
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = DefaultMaxBatchSize
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = DefaultBatchDelay
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.RetryRate == 0 {
		opts.RetryRate = DefaultRetryRate
	}
	if opts.Logger == nil {
		opts.Logger = NoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetricsCollector{}
	}

	c := &Coordinator{
		opts:    opts,
		entries: make(map[string]*ownerEntry),
		done:    make(chan struct{}),
	}
	if opts.RetryRate > 0 {
		c.retryLimiter = rate.NewLimiter(rate.Limit(opts.RetryRate), 1)
	}

	c.wg.Add(1)
	go c.sweepLoop()

	return c, nil
}

// QueueInsert queues a vector write for owner. The write becomes durable at
// the next flush; searches for the same owner see it immediately.
func (c *Coordinator) QueueInsert(ctx context.Context, owner string, id uint64, vector []float32) error {
	err := c.queue(ctx, owner, id, vector)
	c.opts.Metrics.RecordQueue(owner, err)
	return err
}

// QueueDelete queues a vector removal for owner.
func (c *Coordinator) QueueDelete(ctx context.Context, owner string, id uint64) error {
	err := c.queue(ctx, owner, id, nil)
	c.opts.Metrics.RecordQueue(owner, err)
	return err
}

func (c *Coordinator) queue(ctx context.Context, owner string, id uint64, vector []float32) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if owner == "" {
		return errors.New("engine: owner must not be empty")
	}
	if vector != nil && len(vector) != c.opts.Dimension {
		return &hnsw.ErrDimensionMismatch{Expected: c.opts.Dimension, Actual: len(vector)}
	}

	entry, err := c.entry(ctx, owner, true)
	if err != nil {
		return err
	}

	var copied []float32
	if vector != nil {
		copied = make([]float32, len(vector))
		copy(copied, vector)
	}

	entry.mu.Lock()
	entry.queueLocked(pendingOp{id: id, vector: copied})
	pendingCount := len(entry.pending)
	full := pendingCount >= c.opts.MaxBatchSize && !entry.flushing
	entry.mu.Unlock()

	c.opts.Logger.LogQueue(ctx, owner, id, pendingCount)

	// A full batch flushes in the background so queueing stays fast.
	if full {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			_ = c.flushEntry(context.WithoutCancel(ctx), entry, false)
		}()
	}
	return nil
}

// Search runs a k-nearest-neighbor query for owner. Pending writes queued by
// this process are visible to the query even before they are flushed.
// ef <= 0 uses the index default.
func (c *Coordinator) Search(ctx context.Context, owner string, query []float32, k, ef int) ([]hnsw.Result, error) {
	start := time.Now()
	results, err := c.search(ctx, owner, query, k, ef)
	c.opts.Metrics.RecordSearch(owner, k, time.Since(start), err)
	c.opts.Logger.LogSearch(ctx, owner, k, len(results), err)
	return results, err
}

func (c *Coordinator) search(ctx context.Context, owner string, query []float32, k, ef int) ([]hnsw.Result, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	entry, err := c.entry(ctx, owner, false)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	overlay, err := entry.overlayLocked()
	entry.lastModified = time.Now()
	entry.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return overlay.SearchKNN(query, k, ef)
}

// Flush persists owner's pending mutations synchronously.
func (c *Coordinator) Flush(ctx context.Context, owner string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	entry := c.lookup(owner)
	if entry == nil {
		return nil
	}
	return c.flushEntry(ctx, entry, false)
}

// FlushAll persists every owner's pending mutations. The first error is
// returned but every owner is attempted.
func (c *Coordinator) FlushAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, entry := range c.snapshotEntries() {
		entry := entry
		g.Go(func() error {
			return c.flushEntry(ctx, entry, false)
		})
	}
	return g.Wait()
}

// LoadIndex warms owner's index from the blob store. It fails with
// ErrIndexNotFound when no snapshot has ever been committed.
func (c *Coordinator) LoadIndex(ctx context.Context, owner string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	_, err := c.entry(ctx, owner, false)
	return err
}

// EvictOwner flushes owner if dirty and drops it from the cache.
func (c *Coordinator) EvictOwner(ctx context.Context, owner string) error {
	entry := c.lookup(owner)
	if entry == nil {
		return nil
	}

	entry.mu.Lock()
	dirty := entry.dirty
	entry.mu.Unlock()

	if dirty {
		if err := c.flushEntry(ctx, entry, false); err != nil {
			return err
		}
	}

	// A concurrent in-flight flush may still fail; only a confirmed-clean
	// entry may be dropped, otherwise pending writes would be lost.
	entry.mu.Lock()
	clean := !entry.dirty && !entry.flushing
	entry.mu.Unlock()
	if !clean {
		return fmt.Errorf("engine: owner %q still has pending writes", owner)
	}

	c.mu.Lock()
	if c.entries[owner] == entry {
		delete(c.entries, owner)
	}
	c.mu.Unlock()

	c.opts.Metrics.RecordEviction(owner)
	return nil
}

// OwnerStats is a point-in-time summary of one cached owner.
type OwnerStats struct {
	Owner        string
	Dimension    int
	Version      uint64
	Pending      int
	Dirty        bool
	LastModified time.Time
	Index        hnsw.Stats
}

// Stats returns the stats of one cached owner.
func (c *Coordinator) Stats(owner string) (OwnerStats, bool) {
	entry := c.lookup(owner)
	if entry == nil {
		return OwnerStats{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return OwnerStats{
		Owner:        owner,
		Dimension:    entry.index.Dimension(),
		Version:      entry.version,
		Pending:      len(entry.pending),
		Dirty:        entry.dirty,
		LastModified: entry.lastModified,
		Index:        entry.index.Stats(),
	}, true
}

// AllStats returns the stats of every cached owner.
func (c *Coordinator) AllStats() []OwnerStats {
	entries := c.snapshotEntries()
	out := make([]OwnerStats, 0, len(entries))
	for _, entry := range entries {
		if s, ok := c.Stats(entry.owner); ok {
			out = append(out, s)
		}
	}
	return out
}

// Owners returns the owners currently cached.
func (c *Coordinator) Owners() []string {
	entries := c.snapshotEntries()
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.owner)
	}
	return out
}

// Close stops the sweeper and flushes every dirty owner. The coordinator
// rejects all operations afterwards.
func (c *Coordinator) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	err := c.FlushAll(ctx)
	c.wg.Wait()

	// A queue call that passed the closed check just before the flip can land
	// after the first drain snapshots its entries. Nothing new can arrive once
	// the workers are joined, so one more pass empties the stragglers.
	if drainErr := c.FlushAll(ctx); err == nil {
		err = drainErr
	}
	return err
}

// lookup returns the cached entry for owner, or nil.
func (c *Coordinator) lookup(owner string) *ownerEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[owner]
}

func (c *Coordinator) snapshotEntries() []*ownerEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ownerEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	return out
}

// entry returns owner's cached entry, loading its committed snapshot on a
// miss. With create set, a missing snapshot yields a fresh empty index
// instead of ErrIndexNotFound. Concurrent misses for the same owner share
// one load.
func (c *Coordinator) entry(ctx context.Context, owner string, create bool) (*ownerEntry, error) {
	if entry := c.lookup(owner); entry != nil {
		return entry, nil
	}

	v, err, _ := c.loads.Do(owner, func() (any, error) {
		if entry := c.lookup(owner); entry != nil {
			return entry, nil
		}

		entry, err := c.loadEntry(ctx, owner)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[owner] = entry
		c.mu.Unlock()
		return entry, nil
	})
	if err == nil {
		return v.(*ownerEntry), nil
	}
	if !errors.Is(err, ErrIndexNotFound) || !create {
		return nil, err
	}

	// No committed snapshot: a write for a new owner starts from an empty
	// index.
	index, err := hnsw.New(c.opts.Dimension, c.opts.Index...)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing := c.entries[owner]; existing != nil {
		return existing, nil
	}
	entry := newOwnerEntry(owner, index)
	c.entries[owner] = entry
	return entry, nil
}

// loadEntry reads owner's committed snapshot from the blob store.
func (c *Coordinator) loadEntry(ctx context.Context, owner string) (*ownerEntry, error) {
	start := time.Now()
	entry, err := c.loadCommitted(ctx, owner)
	c.opts.Metrics.RecordLoad(owner, time.Since(start), err)
	if err != nil {
		if !errors.Is(err, ErrIndexNotFound) {
			c.opts.Logger.LogLoad(ctx, owner, 0, 0, err)
		}
		return nil, err
	}
	c.opts.Logger.LogLoad(ctx, owner, entry.version, entry.index.Len(), nil)
	return entry, nil
}

func (c *Coordinator) loadCommitted(ctx context.Context, owner string) (*ownerEntry, error) {
	version, ref, err := c.opts.VersionStore.Current(ctx, owner)
	if err != nil {
		return nil, &PersistenceError{Op: "resolve version", Owner: owner, Err: err}
	}
	if version == 0 {
		// The version pointer can be empty while blobs exist, e.g. after a
		// process restart with the in-process version store.
		version, ref, err = c.recoverLatest(ctx, owner)
		if err != nil {
			return nil, err
		}
		if version == 0 {
			return nil, ErrIndexNotFound
		}
	}

	blob, err := c.opts.Store.Load(ctx, ref)
	if err != nil {
		return nil, &PersistenceError{Op: "load snapshot", Owner: owner, Err: err}
	}

	env, err := persistence.Decode(blob)
	if err != nil {
		return nil, err
	}

	cdc, err := codec.ByName(env.CodecName)
	if err != nil {
		return nil, err
	}

	var snap hnsw.Snapshot
	if err := cdc.Unmarshal(env.Payload, &snap); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot: %v", persistence.ErrCorruptSnapshot, err)
	}

	index, err := hnsw.FromSnapshot(&snap, c.opts.Index...)
	if err != nil {
		return nil, err
	}

	entry := newOwnerEntry(owner, index)
	entry.version = env.Version
	entry.ref = ref
	return entry, nil
}

// recoverLatest scans owner's blobs and picks the highest envelope version.
// Blobs that fail validation are skipped; a corrupt latest snapshot must not
// mask an older intact one.
func (c *Coordinator) recoverLatest(ctx context.Context, owner string) (uint64, blobstore.Ref, error) {
	refs, err := c.opts.Store.List(ctx, owner)
	if err != nil {
		return 0, "", &PersistenceError{Op: "list snapshots", Owner: owner, Err: err}
	}

	var (
		bestVersion uint64
		bestRef     blobstore.Ref
	)
	for _, ref := range refs {
		blob, err := c.opts.Store.Load(ctx, ref)
		if err != nil {
			continue
		}
		env, err := persistence.Decode(blob)
		if err != nil {
			continue
		}
		if env.Version > bestVersion {
			bestVersion = env.Version
			bestRef = ref
		}
	}
	return bestVersion, bestRef, nil
}

// flushEntry persists an owner's pending mutations. With paced set, the
// retry limiter may skip the attempt; the sweeper uses this to avoid
// hammering a failing blob store.
func (c *Coordinator) flushEntry(ctx context.Context, entry *ownerEntry, paced bool) error {
	entry.mu.Lock()
	if entry.flushing || !entry.dirty {
		entry.mu.Unlock()
		return nil
	}
	if paced && entry.lastFlushErr != nil && c.retryLimiter != nil && !c.retryLimiter.Allow() {
		entry.mu.Unlock()
		return nil
	}
	entry.flushing = true

	ops := entry.takePendingLocked()
	flushedSeq := maxSeq(ops)
	if err := applyOps(entry.index, ops); err != nil {
		entry.flushing = false
		entry.mu.Unlock()
		return err
	}

	snap, err := entry.index.Snapshot()
	nextVersion := entry.version + 1
	oldRef := entry.ref
	entry.mu.Unlock()

	start := time.Now()
	newRef, persistErr := func() (blobstore.Ref, error) {
		if err != nil {
			return "", err
		}

		payload, err := c.opts.Codec.Marshal(snap)
		if err != nil {
			return "", fmt.Errorf("engine: encode snapshot: %w", err)
		}
		blob, err := persistence.Encode(payload, c.opts.Codec.Name(), c.opts.Compression, nextVersion)
		if err != nil {
			return "", err
		}

		ref, err := c.opts.Store.Save(ctx, entry.owner, blob)
		if err != nil {
			return "", &PersistenceError{Op: "save snapshot", Owner: entry.owner, Err: err}
		}
		if err := c.opts.VersionStore.Commit(ctx, entry.owner, nextVersion, ref); err != nil {
			// Roll the orphaned blob back so it cannot leak.
			_ = c.opts.Store.Delete(ctx, ref)
			return "", &PersistenceError{Op: "commit version", Owner: entry.owner, Err: err}
		}
		return ref, nil
	}()

	entry.mu.Lock()
	entry.flushing = false
	entry.lastFlushErr = persistErr
	if persistErr == nil {
		// Clear by sequence, not by count: an id re-queued while the persist
		// was in flight coalesced into the batch region with a newer seq and
		// must stay pending.
		entry.clearFlushedLocked(flushedSeq)
		entry.version = nextVersion
		entry.ref = newRef
		entry.lastModified = time.Now()
	}
	entry.mu.Unlock()

	c.opts.Metrics.RecordFlush(entry.owner, len(ops), time.Since(start), persistErr)
	c.opts.Logger.LogFlush(ctx, entry.owner, len(ops), nextVersion, time.Since(start), persistErr)

	if persistErr == nil && c.opts.GCSuperseded && oldRef != "" {
		_ = c.opts.Store.Delete(ctx, oldRef)
	}
	return persistErr
}

// sweepLoop periodically flushes due batches and evicts idle owners.
func (c *Coordinator) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep(context.Background())
		}
	}
}

func (c *Coordinator) sweep(ctx context.Context) {
	now := time.Now()

	g := new(errgroup.Group)
	g.SetLimit(sweepConcurrency)

	for _, entry := range c.snapshotEntries() {
		entry := entry
		entry.mu.Lock()
		flushDue := entry.dirty && !entry.flushing && now.Sub(entry.firstPendingAt) >= c.opts.BatchDelay
		idle := now.Sub(entry.lastModified)
		expired := idle >= c.opts.CacheTTL
		entry.mu.Unlock()

		switch {
		case expired:
			g.Go(func() error {
				// A failed flush keeps the entry cached; dropping it would
				// lose the pending writes.
				if err := c.EvictOwner(ctx, entry.owner); err == nil {
					c.opts.Logger.LogEvict(ctx, entry.owner, idle)
				}
				return nil
			})
		case flushDue:
			g.Go(func() error {
				_ = c.flushEntry(ctx, entry, true)
				return nil
			})
		}
	}

	_ = g.Wait()
}
