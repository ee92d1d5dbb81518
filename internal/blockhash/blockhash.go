// Package blockhash computes a cheap, in-process digest over a set of heap
// block offsets: an FNV-1a variant that consumes 8 bytes per round via a
// XOR-then-multiply core, applied to the []uint64 offset lists gathered by
// the allocator's invariant checker.
//
// DO NOT STORE the return value: it is not cross-platform compatible and is
// meant for single-process, in-memory comparisons only.
package blockhash

import "unsafe"

const (
	offset64 = uint64(14695981039346656037)
	prime64  = uint64(1099511628211)
)

// Hash returns a digest of the given offsets. The digest is order-dependent,
// so callers that want an order-independent comparison (e.g. comparing two
// traversals of the same set of free blocks) must sort offsets first.
func Hash(offsets []uint64) uint64 {
	if len(offsets) == 0 {
		return offset64
	}
	p := unsafe.Pointer(&offsets[0])
	h := offset64
	for i := 0; i < len(offsets); i++ {
		h ^= *(*uint64)(unsafe.Add(p, i<<3))
		h *= prime64
	}
	return h
}
