// Package heap implements the "heap provider" collaborator: a single
// contiguous, monotonically-extendable byte region with sbrk-style
// extension, plus the byte-wise copy/fill primitives the allocator engine
// needs. It deliberately knows nothing about block headers, free lists, or
// any other bookkeeping — that is entirely the malloc package's concern.
package heap

import (
	"fmt"
	"unsafe"
)

// DefaultReserveBytes is the address space reserved up front by NewRegion
// when the caller does not need a smaller reservation for testing. Only the
// committed prefix (grown via Extend) ever costs resident memory on the
// unix build.
const DefaultReserveBytes = 1 << 30 // 1GiB

// errNotAligned is returned when a requested size is not a multiple of 16,
// the alignment the allocator engine requires of every extension.
var errNotAligned = fmt.Errorf("heap: size must be a positive multiple of 16")

// alignSlack is added to every raw reservation so the usable, 16-byte
// aligned base returned by Lo() always has reserveBytes of room after it,
// regardless of the raw allocation's own alignment.
const alignSlack = 16

func alignUp16(p unsafe.Pointer) unsafe.Pointer {
	rem := uintptr(p) % 16
	if rem == 0 {
		return p
	}
	return unsafe.Add(p, 16-int(rem))
}
