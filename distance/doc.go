// Package distance provides the distance metrics used by the vector index.
//
// All metrics operate on fixed-length float32 vectors; length agreement is the
// caller's responsibility. Dot products and magnitudes are computed with the
// SIMD-accelerated kernels from viterin/vek.
package distance
