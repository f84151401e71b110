package engine

import (
	"sync"
	"time"

	"github.com/quivigo/quivigo/blobstore"
	"github.com/quivigo/quivigo/hnsw"
)

// pendingOp is one queued mutation. A nil vector is a delete. seq orders
// mutations across coalescing: re-queueing an id keeps its position but
// takes a fresh seq, so a flush can tell which ops it actually persisted.
type pendingOp struct {
	seq    uint64
	id     uint64
	vector []float32
}

// ownerEntry is the cached state for one owner. All fields are guarded by
// mu; the coordinator never touches them without holding it.
type ownerEntry struct {
	mu    sync.Mutex
	owner string

	index *hnsw.Index

	// pending holds queued mutations in submission order. Re-queueing an id
	// coalesces in place, keeping the original position.
	pending    []pendingOp
	pendingPos map[uint64]int

	version uint64
	ref     blobstore.Ref

	nextSeq        uint64
	dirty          bool
	flushing       bool
	firstPendingAt time.Time
	lastModified   time.Time
	lastFlushErr   error
}

func newOwnerEntry(owner string, index *hnsw.Index) *ownerEntry {
	return &ownerEntry{
		owner:        owner,
		index:        index,
		pendingPos:   make(map[uint64]int),
		lastModified: time.Now(),
	}
}

// queueLocked records a mutation, coalescing repeated ids.
func (e *ownerEntry) queueLocked(op pendingOp) {
	now := time.Now()
	e.nextSeq++
	op.seq = e.nextSeq
	if pos, ok := e.pendingPos[op.id]; ok {
		e.pending[pos] = op
	} else {
		if len(e.pending) == 0 {
			e.firstPendingAt = now
		}
		e.pendingPos[op.id] = len(e.pending)
		e.pending = append(e.pending, op)
	}
	e.dirty = true
	e.lastModified = now
}

// takePendingLocked returns the queued mutations without clearing them; they
// are dropped only after a successful persist.
func (e *ownerEntry) takePendingLocked() []pendingOp {
	ops := make([]pendingOp, len(e.pending))
	copy(ops, e.pending)
	return ops
}

// clearFlushedLocked drops the mutations a flush persisted, identified by
// their sequence numbers. An id re-queued at its old position while the
// flush was in flight carries a newer seq than anything in the flushed
// batch and stays pending.
func (e *ownerEntry) clearFlushedLocked(maxSeq uint64) {
	var kept []pendingOp
	for _, op := range e.pending {
		if op.seq > maxSeq {
			kept = append(kept, op)
		}
	}
	e.pending = kept
	e.pendingPos = make(map[uint64]int, len(e.pending))
	for i, op := range e.pending {
		e.pendingPos[op.id] = i
	}
	if len(e.pending) == 0 {
		e.dirty = false
		e.firstPendingAt = time.Time{}
	} else {
		e.firstPendingAt = time.Now()
	}
}

// maxSeq returns the highest sequence number in a batch. Coalescing can
// re-stamp an op at an early position, so the last element is not enough.
func maxSeq(ops []pendingOp) uint64 {
	var max uint64
	for _, op := range ops {
		if op.seq > max {
			max = op.seq
		}
	}
	return max
}

// applyOps writes mutations into an index in submission order. Inserts are
// overwrite-idempotent and deletes of missing ids are no-ops, so replaying
// the same ops after a failed persist is safe.
func applyOps(index *hnsw.Index, ops []pendingOp) error {
	for _, op := range ops {
		if op.vector == nil {
			index.Delete(op.id)
			continue
		}
		if err := index.Insert(op.id, op.vector); err != nil {
			return err
		}
	}
	return nil
}

// overlayLocked returns the index a search should run against. With no
// pending mutations the committed index is used directly; otherwise a deep
// clone with the pending ops replayed gives read-your-writes semantics
// without publishing uncommitted state.
func (e *ownerEntry) overlayLocked() (*hnsw.Index, error) {
	if len(e.pending) == 0 {
		return e.index, nil
	}
	overlay := e.index.Clone()
	if err := applyOps(overlay, e.takePendingLocked()); err != nil {
		return nil, err
	}
	return overlay, nil
}
