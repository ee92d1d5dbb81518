//go:build unix

package heap

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Region is a single contiguous, monotonically-growing byte range. On unix
// it reserves the full range as PROT_NONE up front via mmap and commits
// pages with mprotect as Extend is called, so unused address space never
// costs resident memory. The base address never moves for the lifetime of
// the Region.
//
// mprotect requires a page-aligned address and length, but Extend is called
// in 16-byte-granular steps (the allocator's own alignment unit), so `used`
// very rarely lands on a page boundary. `committed` tracks how many bytes
// from the start of the raw mmap have actually been mprotect'd — always a
// multiple of pageSize — independently of `used`, which tracks the
// allocator-visible high-water mark. Extend only calls mprotect when `used`
// is about to outgrow what's already committed, and then commits a whole
// number of pages at once.
type Region struct {
	mapping   []byte
	base      unsafe.Pointer
	reserved  int
	used      int
	committed int
	pageSize  int
}

// NewRegion reserves reserveBytes of address space. reserveBytes must be a
// positive multiple of 16.
func NewRegion(reserveBytes int) (*Region, error) {
	if reserveBytes <= 0 || reserveBytes%16 != 0 {
		return nil, errNotAligned
	}
	mapping, err := unix.Mmap(-1, 0, reserveBytes+alignSlack, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("heap: reserve %d bytes: %w", reserveBytes, err)
	}
	return &Region{
		mapping:  mapping,
		base:     alignUp16(unsafe.Pointer(&mapping[0])),
		reserved: reserveBytes,
		pageSize: unix.Getpagesize(),
	}, nil
}

// Extend commits n additional bytes at the current high end of the region
// and returns a pointer to the start of the new bytes. n must be a positive
// multiple of 16. Returns (nil, false) on overflow of the reservation —
// this is the allocator's OOM signal.
func (r *Region) Extend(n int) (unsafe.Pointer, bool) {
	if n <= 0 || n%16 != 0 {
		return nil, false
	}
	if r.used+n > r.reserved {
		return nil, false
	}

	baseOff := int(uintptr(r.base) - uintptr(unsafe.Pointer(&r.mapping[0])))
	need := baseOff + r.used + n
	if need > r.committed {
		target := roundUpInt(need, r.pageSize)
		if target > len(r.mapping) {
			target = len(r.mapping)
		}
		if target < need {
			return nil, false
		}
		if err := unix.Mprotect(r.mapping[r.committed:target], unix.PROT_READ|unix.PROT_WRITE); err != nil {
			return nil, false
		}
		r.committed = target
	}

	start := unsafe.Add(r.base, r.used)
	r.used += n
	return start, true
}

func roundUpInt(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// Lo returns the inclusive low address of the committed region.
func (r *Region) Lo() unsafe.Pointer { return r.base }

// Hi returns the inclusive high address of the committed region. It is only
// meaningful once at least one Extend call has succeeded.
func (r *Region) Hi() unsafe.Pointer {
	if r.used == 0 {
		return r.base
	}
	return unsafe.Add(r.base, r.used-1)
}

// Used returns the number of committed bytes.
func (r *Region) Used() int { return r.used }

// Memset fills n bytes starting at p with v.
func (r *Region) Memset(p unsafe.Pointer, v byte, n int) {
	b := unsafe.Slice((*byte)(p), n)
	for i := range b {
		b[i] = v
	}
}

// Memcpy copies n bytes from src to dst. The ranges must not overlap.
func (r *Region) Memcpy(dst, src unsafe.Pointer, n int) {
	d := unsafe.Slice((*byte)(dst), n)
	s := unsafe.Slice((*byte)(src), n)
	copy(d, s)
}
