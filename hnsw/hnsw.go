// Package hnsw implements a Hierarchical Navigable Small World graph for
// approximate nearest neighbor search over fixed-dimension float32 vectors.
//
// Node ids are caller-assigned. Deletion is logical: removed nodes are
// tombstoned and skipped during result assembly, and space is reclaimed by a
// full rebuild (see Compacted).
package hnsw

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/quivigo/quivigo/distance"
	"github.com/quivigo/quivigo/internal/queue"
)

const (
	// maxLevelCap bounds the geometric level draw.
	maxLevelCap = 16

	// mmax0Multiplier doubles the connection bound on the bottom layer.
	mmax0Multiplier = 2

	// minimumM is the smallest valid M; M=1 would divide by zero in mL.
	minimumM = 2

	// DefaultM is the default number of bidirectional links per node per layer.
	DefaultM = 16

	// DefaultEFConstruction is the default candidate-list size during insertion.
	DefaultEFConstruction = 200

	// DefaultEFSearch is the default candidate-list size during search.
	DefaultEFSearch = 50
)

// ErrInvalidK is returned when a search requests a non-positive k.
var ErrInvalidK = errors.New("hnsw: k must be positive")

// ErrDimensionMismatch is returned when a vector's length disagrees with the
// index dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("hnsw: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Options configures an Index.
type Options struct {
	// Dimension is the fixed vector dimension. Required.
	Dimension int

	// M is the number of bidirectional links per node per layer.
	// Layer 0 allows 2*M.
	M int

	// EFConstruction is the candidate-list size during insertion.
	EFConstruction int

	// EFSearch is the default candidate-list size during search.
	EFSearch int

	// MaxElements is an advisory capacity hint for the node table.
	MaxElements int

	// Metric selects the distance metric.
	Metric distance.Metric

	// RandomSeed seeds the level generator. Nil means time-based seeding;
	// set it for reproducible graph construction in tests.
	RandomSeed *int64
}

// DefaultOptions are the options applied before user overrides.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	EFSearch:       DefaultEFSearch,
	Metric:         distance.MetricCosine,
}

// Result is a single search hit.
type Result struct {
	ID       uint64
	Distance float32
}

// Index is the HNSW graph. All methods are safe for concurrent use.
type Index struct {
	mu sync.RWMutex

	opts     Options
	mmax     int     // max connections per node per layer
	mmax0    int     // max connections on layer 0
	ml       float64 // level normalization factor, 1/ln(M)
	distFunc distance.Func

	nodes      map[uint64]*Node
	layers     []*Layer
	entryPoint uint64
	hasEntry   bool
	size       int // live (non-tombstoned) nodes
	tombstones *roaring64.Bitmap

	rng *rand.Rand
}

// New creates an empty Index.
func New(dimension int, optFns ...func(o *Options)) (*Index, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Dimension = dimension

	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("hnsw: invalid dimension: %d", opts.Dimension)
	}
	if opts.M < minimumM {
		opts.M = minimumM
	}
	if opts.EFConstruction <= 0 {
		opts.EFConstruction = DefaultEFConstruction
	}
	if opts.EFSearch <= 0 {
		opts.EFSearch = DefaultEFSearch
	}

	distFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if opts.RandomSeed != nil {
		rng = rand.New(rand.NewSource(*opts.RandomSeed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	capacity := opts.MaxElements
	if capacity < 0 {
		capacity = 0
	}

	h := &Index{
		opts:       opts,
		mmax:       opts.M,
		mmax0:      mmax0Multiplier * opts.M,
		ml:         1 / math.Log(float64(opts.M)),
		distFunc:   distFunc,
		nodes:      make(map[uint64]*Node, capacity),
		layers:     []*Layer{newLayer(mmax0Multiplier * opts.M)},
		tombstones: roaring64.New(),
		rng:        rng,
	}

	return h, nil
}

// Dimension returns the fixed vector dimension.
func (h *Index) Dimension() int { return h.opts.Dimension }

// Metric returns the configured distance metric.
func (h *Index) Metric() distance.Metric { return h.opts.Metric }

// Len returns the number of live (non-tombstoned) nodes.
func (h *Index) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Contains reports whether id is present and not tombstoned.
func (h *Index) Contains(id uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.tombstones.Contains(id) {
		return false
	}
	_, ok := h.nodes[id]
	return ok
}

// Insert adds a vector under the given id.
//
// Re-inserting an existing id overwrites it: the old node is detached from
// the graph and the vector is inserted fresh. Edges pointing at the detached
// node dangle until compaction; traversal skips unknown ids.
func (h *Index) Insert(id uint64, vector []float32) error {
	if len(vector) != h.opts.Dimension {
		return &ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(vector)}
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.nodes[id]; ok {
		h.detachLocked(old)
	}

	level := h.drawLevel()
	h.ensureLayersLocked(level)

	node := newNode(id, vec, level)
	h.nodes[id] = node
	for l := 0; l <= level; l++ {
		h.layers[l].Nodes[id] = struct{}{}
	}

	if !h.hasEntry {
		h.entryPoint = id
		h.hasEntry = true
		h.size++
		return nil
	}

	entry := h.nodes[h.entryPoint]
	currID := h.entryPoint
	currDist := h.distFunc(vec, entry.Vector)

	// Greedy descent through the layers above the node's level.
	for l := entry.Level; l > level; l-- {
		currID, currDist = h.greedyClosestLocked(vec, currID, currDist, l)
	}

	// Search and link downward to layer 0. Layers above the current entry
	// point hold no other members, so the new node owns them edge-free and
	// linking starts where the graph actually has neighbors.
	for l := min(level, entry.Level); l >= 0; l-- {
		candidates := h.searchLayerLocked(vec, currID, h.opts.EFConstruction, l)

		if best, ok := candidates.Min(); ok {
			currID = best.Node
		}

		neighbors := h.selectClosest(candidates, h.maxConnections(l))
		node.Connections[l] = neighbors

		for _, neighborID := range neighbors {
			h.linkLocked(neighborID, id, l)
		}
	}

	// A node above every existing level becomes the new entry point.
	if level > h.nodes[h.entryPoint].Level {
		h.entryPoint = id
	}

	h.size++
	return nil
}

// Delete tombstones a node. The graph structure is left untouched so that
// connectivity is preserved; SearchKNN skips tombstoned nodes.
func (h *Index) Delete(id uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.nodes[id]; !ok {
		return false
	}
	if h.tombstones.Contains(id) {
		return false
	}
	h.tombstones.Add(id)
	h.size--
	return true
}

// SearchKNN returns the k nearest live nodes to query, sorted ascending by
// distance. An empty index yields an empty result, never an error.
// ef overrides the configured EFSearch when > 0; the effective value is never
// below k.
func (h *Index) SearchKNN(query []float32, k int, ef int) ([]Result, error) {
	if len(query) != h.opts.Dimension {
		return nil, &ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(query)}
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidK, k)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.hasEntry || h.size == 0 {
		return []Result{}, nil
	}

	if ef <= 0 {
		ef = h.opts.EFSearch
	}
	if ef < k {
		ef = k
	}

	entry := h.nodes[h.entryPoint]
	currID := h.entryPoint
	currDist := h.distFunc(query, entry.Vector)

	for l := entry.Level; l > 0; l-- {
		currID, currDist = h.greedyClosestLocked(query, currID, currDist, l)
	}

	results := h.searchLayerLocked(query, currID, ef, 0)

	for results.Len() > k {
		results.Pop()
	}

	out := make([]Result, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		item, _ := results.Pop()
		out[i] = Result{ID: item.Node, Distance: item.Distance}
	}
	return out, nil
}

// drawLevel samples a level from the geometric distribution floor(-ln(U)*mL),
// capped at maxLevelCap.
func (h *Index) drawLevel() int {
	u := h.rng.Float64()
	for u == 0 {
		u = h.rng.Float64()
	}
	level := int(math.Floor(-math.Log(u) * h.ml))
	if level > maxLevelCap {
		level = maxLevelCap
	}
	return level
}

func (h *Index) maxConnections(level int) int {
	if level == 0 {
		return h.mmax0
	}
	return h.mmax
}

func (h *Index) ensureLayersLocked(level int) {
	for len(h.layers) <= level {
		h.layers = append(h.layers, newLayer(h.mmax))
	}
}

// detachLocked removes a node from the table and the layer id sets, clearing
// any tombstone. Dangling edges to the removed id are tolerated by traversal.
func (h *Index) detachLocked(node *Node) {
	for l := 0; l <= node.Level && l < len(h.layers); l++ {
		delete(h.layers[l].Nodes, node.ID)
	}
	delete(h.nodes, node.ID)
	if h.tombstones.Contains(node.ID) {
		h.tombstones.Remove(node.ID)
	} else {
		h.size--
	}
	if h.hasEntry && h.entryPoint == node.ID {
		h.electEntryLocked()
	}
}

// electEntryLocked picks the highest-level remaining node as the entry point.
func (h *Index) electEntryLocked() {
	h.hasEntry = false
	for l := len(h.layers) - 1; l >= 0; l-- {
		for id := range h.layers[l].Nodes {
			h.entryPoint = id
			h.hasEntry = true
			return
		}
	}
}

// greedyClosestLocked walks level l edges while a strictly closer neighbor
// exists, returning the local minimum and its distance.
func (h *Index) greedyClosestLocked(query []float32, currID uint64, currDist float32, level int) (uint64, float32) {
	changed := true
	for changed {
		changed = false
		curr, ok := h.nodes[currID]
		if !ok {
			break
		}
		for _, nextID := range curr.Connections[level] {
			next, ok := h.nodes[nextID]
			if !ok {
				continue
			}
			if d := h.distFunc(query, next.Vector); d < currDist {
				currID = nextID
				currDist = d
				changed = true
			}
		}
	}
	return currID, currDist
}

// searchLayerLocked runs the bounded best-first traversal on one layer.
// It returns a max-heap of at most ef live nodes; tombstoned nodes are
// traversed but never enter the result set.
func (h *Index) searchLayerLocked(query []float32, epID uint64, ef int, level int) *queue.PriorityQueue {
	visited := roaring64.New()
	visited.Add(epID)

	candidates := queue.NewMin(ef)
	results := queue.NewMax(ef)

	ep, ok := h.nodes[epID]
	if !ok {
		return results
	}
	epDist := h.distFunc(query, ep.Vector)
	candidates.Push(queue.Item{Node: epID, Distance: epDist})
	if !h.tombstones.Contains(epID) {
		results.Push(queue.Item{Node: epID, Distance: epDist})
	}

	for candidates.Len() > 0 {
		curr, _ := candidates.Pop()

		if results.Len() >= ef {
			if worst, ok := results.Top(); ok && curr.Distance > worst.Distance {
				break
			}
		}

		node, ok := h.nodes[curr.Node]
		if !ok {
			continue
		}

		for _, nextID := range node.Connections[level] {
			if visited.Contains(nextID) {
				continue
			}
			visited.Add(nextID)

			next, ok := h.nodes[nextID]
			if !ok {
				continue
			}
			nextDist := h.distFunc(query, next.Vector)

			if results.Len() >= ef {
				if worst, ok := results.Top(); ok && nextDist > worst.Distance {
					continue
				}
			}

			candidates.Push(queue.Item{Node: nextID, Distance: nextDist})
			if !h.tombstones.Contains(nextID) {
				results.Push(queue.Item{Node: nextID, Distance: nextDist})
				if results.Len() > ef {
					results.Pop()
				}
			}
		}
	}

	return results
}

// selectClosest drains a max-heap into the m closest ids, closest first.
func (h *Index) selectClosest(candidates *queue.PriorityQueue, m int) []uint64 {
	for candidates.Len() > m {
		candidates.Pop()
	}
	out := make([]uint64, candidates.Len())
	for i := candidates.Len() - 1; i >= 0; i-- {
		item, _ := candidates.Pop()
		out[i] = item.Node
	}
	return out
}

// linkLocked adds a reciprocal edge from nodeID to newID on the given level,
// pruning nodeID's edge set back to its bound when it overflows.
func (h *Index) linkLocked(nodeID, newID uint64, level int) {
	node, ok := h.nodes[nodeID]
	if !ok {
		return
	}

	for _, c := range node.Connections[level] {
		if c == newID {
			return
		}
	}

	conns := append(node.Connections[level], newID)
	maxConns := h.maxConnections(level)
	if len(conns) <= maxConns {
		node.Connections[level] = conns
		return
	}

	// Keep the closest maxConns neighbors.
	pq := queue.NewMax(len(conns))
	for _, c := range conns {
		neighbor, ok := h.nodes[c]
		if !ok {
			continue
		}
		pq.Push(queue.Item{Node: c, Distance: h.distFunc(node.Vector, neighbor.Vector)})
	}
	node.Connections[level] = h.selectClosest(pq, maxConns)
}
