package hnsw

// Node is a single element of the graph. Nodes live in the index's flat
// id-keyed table; layers and adjacency lists refer to them by id only, so
// bidirectional edges never form reference cycles.
type Node struct {
	ID     uint64
	Vector []float32
	Level  int
	// Connections maps a level to the neighbor ids on that level.
	Connections map[int][]uint64
}

func newNode(id uint64, vector []float32, level int) *Node {
	return &Node{
		ID:          id,
		Vector:      vector,
		Level:       level,
		Connections: make(map[int][]uint64, level+1),
	}
}

// Layer tracks which nodes participate in one level of the graph and the
// per-node connection bound for that level.
type Layer struct {
	MaxConnections int
	Nodes          map[uint64]struct{}
}

func newLayer(maxConnections int) *Layer {
	return &Layer{
		MaxConnections: maxConnections,
		Nodes:          make(map[uint64]struct{}),
	}
}
