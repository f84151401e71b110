package hnsw

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/quivigo/quivigo/distance"
)

// NodeSnapshot is the serializable form of a single graph node.
type NodeSnapshot struct {
	ID          uint64
	Vector      []float32
	Level       int
	Connections map[int][]uint64
}

// Snapshot is the serializable form of an Index. It is codec-agnostic; the
// persistence layer decides how the struct is encoded on the wire.
type Snapshot struct {
	Dimension      int
	M              int
	EFConstruction int
	EFSearch       int
	Metric         string
	EntryPoint     uint64
	HasEntry       bool
	Size           int
	Nodes          []NodeSnapshot
	LayerCaps      []int
	Tombstones     []byte
}

// Snapshot captures the full graph state for persistence.
func (h *Index) Snapshot() (*Snapshot, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := &Snapshot{
		Dimension:      h.opts.Dimension,
		M:              h.opts.M,
		EFConstruction: h.opts.EFConstruction,
		EFSearch:       h.opts.EFSearch,
		Metric:         h.opts.Metric.String(),
		EntryPoint:     h.entryPoint,
		HasEntry:       h.hasEntry,
		Size:           h.size,
		Nodes:          make([]NodeSnapshot, 0, len(h.nodes)),
		LayerCaps:      make([]int, len(h.layers)),
	}

	for i, layer := range h.layers {
		s.LayerCaps[i] = layer.MaxConnections
	}

	for _, node := range h.nodes {
		ns := NodeSnapshot{
			ID:          node.ID,
			Vector:      append([]float32(nil), node.Vector...),
			Level:       node.Level,
			Connections: make(map[int][]uint64, len(node.Connections)),
		}
		for level, conns := range node.Connections {
			ns.Connections[level] = append([]uint64(nil), conns...)
		}
		s.Nodes = append(s.Nodes, ns)
	}

	if !h.tombstones.IsEmpty() {
		data, err := h.tombstones.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("hnsw: marshal tombstones: %w", err)
		}
		s.Tombstones = data
	}

	return s, nil
}

// FromSnapshot reconstructs an Index from a Snapshot. Option overrides are
// applied on top of the snapshot's stored parameters, so callers can adjust
// tunables like EFSearch without rebuilding the graph.
func FromSnapshot(s *Snapshot, optFns ...func(o *Options)) (*Index, error) {
	metric, ok := distance.MetricByName(s.Metric)
	if !ok {
		return nil, fmt.Errorf("hnsw: unknown metric in snapshot: %q", s.Metric)
	}

	opts := Options{
		M:              s.M,
		EFConstruction: s.EFConstruction,
		EFSearch:       s.EFSearch,
		Metric:         metric,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	h, err := New(s.Dimension, func(o *Options) { *o = opts; o.Dimension = s.Dimension })
	if err != nil {
		return nil, err
	}

	h.layers = make([]*Layer, len(s.LayerCaps))
	for i, maxConns := range s.LayerCaps {
		h.layers[i] = newLayer(maxConns)
	}
	if len(h.layers) == 0 {
		h.layers = []*Layer{newLayer(h.mmax0)}
	}

	for _, ns := range s.Nodes {
		node := newNode(ns.ID, append([]float32(nil), ns.Vector...), ns.Level)
		for level, conns := range ns.Connections {
			node.Connections[level] = append([]uint64(nil), conns...)
		}
		h.nodes[ns.ID] = node
		for l := 0; l <= ns.Level && l < len(h.layers); l++ {
			h.layers[l].Nodes[ns.ID] = struct{}{}
		}
	}

	if len(s.Tombstones) > 0 {
		tombstones := roaring64.New()
		if err := tombstones.UnmarshalBinary(s.Tombstones); err != nil {
			return nil, fmt.Errorf("hnsw: unmarshal tombstones: %w", err)
		}
		h.tombstones = tombstones
	}

	h.entryPoint = s.EntryPoint
	h.hasEntry = s.HasEntry
	h.size = s.Size

	return h, nil
}

// Clone returns a deep copy sharing no mutable state with the receiver.
// The copy keeps the original's parameters but draws levels from its own
// freshly seeded generator.
func (h *Index) Clone() *Index {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, _ := New(h.opts.Dimension, func(o *Options) {
		*o = h.opts
		o.RandomSeed = nil
	})

	c.layers = make([]*Layer, len(h.layers))
	for i, layer := range h.layers {
		nl := newLayer(layer.MaxConnections)
		for id := range layer.Nodes {
			nl.Nodes[id] = struct{}{}
		}
		c.layers[i] = nl
	}

	for id, node := range h.nodes {
		cn := newNode(id, append([]float32(nil), node.Vector...), node.Level)
		for level, conns := range node.Connections {
			cn.Connections[level] = append([]uint64(nil), conns...)
		}
		c.nodes[id] = cn
	}

	c.tombstones = h.tombstones.Clone()
	c.entryPoint = h.entryPoint
	c.hasEntry = h.hasEntry
	c.size = h.size

	return c
}

// Compacted rebuilds the index from its live nodes, discarding tombstones and
// any dangling edges left behind by overwrites. The receiver is unchanged.
func (h *Index) Compacted() (*Index, error) {
	h.mu.RLock()
	live := make([]*Node, 0, h.size)
	for id, node := range h.nodes {
		if h.tombstones.Contains(id) {
			continue
		}
		live = append(live, node)
	}
	opts := h.opts
	h.mu.RUnlock()

	c, err := New(opts.Dimension, func(o *Options) { *o = opts })
	if err != nil {
		return nil, err
	}
	for _, node := range live {
		if err := c.Insert(node.ID, node.Vector); err != nil {
			return nil, err
		}
	}
	return c, nil
}
