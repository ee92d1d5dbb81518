//go:build !unix

package heap

import (
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"
)

// Region is a single contiguous, monotonically-growing byte range. The
// portable fallback pre-allocates the full reservation as one dirtmake
// buffer (uninitialized, not zeroed) and only bumps a used high-water mark
// on Extend; the backing array's address never changes for the lifetime of
// the Region, because Go's garbage collector never moves heap-allocated
// byte slices, which is what lets the allocator engine keep raw offsets
// into it valid forever.
type Region struct {
	arena    []byte
	base     unsafe.Pointer
	reserved int
	used     int
}

// NewRegion reserves reserveBytes up front. reserveBytes must be a positive
// multiple of 16.
func NewRegion(reserveBytes int) (*Region, error) {
	if reserveBytes <= 0 || reserveBytes%16 != 0 {
		return nil, errNotAligned
	}
	arena := dirtmake.Bytes(reserveBytes+alignSlack, reserveBytes+alignSlack)
	return &Region{
		arena:    arena,
		base:     alignUp16(unsafe.Pointer(&arena[0])),
		reserved: reserveBytes,
	}, nil
}

// Extend grows the committed prefix by n bytes and returns a pointer to the
// start of the new bytes. n must be a positive multiple of 16. Returns
// (nil, false) once the reservation is exhausted — the allocator's OOM
// signal.
func (r *Region) Extend(n int) (unsafe.Pointer, bool) {
	if n <= 0 || n%16 != 0 {
		return nil, false
	}
	if r.used+n > r.reserved {
		return nil, false
	}
	start := unsafe.Add(r.base, r.used)
	r.used += n
	return start, true
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
