package queue

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinHeapOrdering(t *testing.T) {
	pq := NewMin(8)

	rng := rand.New(rand.NewSource(1))
	want := make([]float32, 0, 100)
	for i := 0; i < 100; i++ {
		d := rng.Float32()
		want = append(want, d)
		pq.Push(Item{Node: uint64(i), Distance: d})
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	for i := 0; pq.Len() > 0; i++ {
		it, ok := pq.Pop()
		assert.True(t, ok)
		assert.Equal(t, want[i], it.Distance)
	}

	_, ok := pq.Pop()
	assert.False(t, ok)
}

func TestMaxHeapTop(t *testing.T) {
	pq := NewMax(4)
	pq.Push(Item{Node: 1, Distance: 0.5})
	pq.Push(Item{Node: 2, Distance: 1.5})
	pq.Push(Item{Node: 3, Distance: 1.0})

	top, ok := pq.Top()
	assert.True(t, ok)
	assert.Equal(t, uint64(2), top.Node)

	min, ok := pq.Min()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), min.Node)
}

func TestReset(t *testing.T) {
	pq := NewMin(4)
	pq.Push(Item{Node: 1, Distance: 1})
	pq.Reset()
	assert.Equal(t, 0, pq.Len())

	_, ok := pq.Top()
	assert.False(t, ok)
}
