package hnsw

// Stats is a point-in-time summary of graph shape and occupancy.
type Stats struct {
	Size       int   // live nodes
	Tombstoned int   // logically deleted nodes awaiting compaction
	MaxLevel   int   // highest allocated layer
	LayerSizes []int // node count per layer, bottom first
}

// Stats summarizes the current graph state.
func (h *Index) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{
		Size:       h.size,
		Tombstoned: int(h.tombstones.GetCardinality()),
		MaxLevel:   len(h.layers) - 1,
		LayerSizes: make([]int, len(h.layers)),
	}
	for i, layer := range h.layers {
		s.LayerSizes[i] = len(layer.Nodes)
	}
	return s
}
