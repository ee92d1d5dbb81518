package malloc

import (
	"fmt"
	"unsafe"

	"github.com/JasonH21/Malloc-Implementation/heap"
)

// Allocator is the free-space bookkeeping and placement engine: block
// layout with packed boundary tags, segregated free-list indexing,
// bounded best-of-k find-fit, split/coalesce, and heap extension. It owns
// one heap.Region exclusively — it is never safe to call an Allocator's
// methods from more than one goroutine at a time, and nothing in this
// package spawns goroutines of its own.
type Allocator struct {
	cfg      Config
	region   *heap.Region
	base     unsafe.Pointer
	epilogue off
	seg      []off
}

// NewAllocator creates an Allocator over a freshly reserved heap.Region
// using DefaultConfig, reserving heap.DefaultReserveBytes of address space.
func NewAllocator() (*Allocator, error) {
	return NewAllocatorWithConfig(DefaultConfig(), heap.DefaultReserveBytes)
}

// NewAllocatorWithConfig creates an Allocator with custom tunables over a
// freshly reserved heap.Region of reserveBytes.
func NewAllocatorWithConfig(cfg Config, reserveBytes int) (*Allocator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	region, err := heap.NewRegion(reserveBytes)
	if err != nil {
		return nil, err
	}
	a := &Allocator{cfg: cfg, region: region, seg: make([]off, cfg.NumSegs)}
	if err := a.init(); err != nil {
		return nil, err
	}
	return a, nil
}

// init lays down the prologue and epilogue sentinels and performs the
// first heap extension. All of the allocator's mutable state lives on this
// Allocator value rather than in package-level globals, so multiple
// independent heaps can coexist in the same process.
func (a *Allocator) init() error {
	if _, ok := a.region.Extend(2 * wordSize); !ok {
		return fmt.Errorf("malloc: failed to reserve initial prologue/epilogue words")
	}
	a.base = a.region.Lo()

	const prologue off = 0
	a.setHeader(prologue, pack(0, true, false, false))

	epilogue := off(wordSize)
	// The preceding "block" is the prologue: allocated, not mini-sized.
	a.setHeader(epilogue, pack(0, true, true, false))
	a.epilogue = epilogue

	merged, ok := a.extendHeap(uint64(a.cfg.ChunkSize))
	if !ok {
		return fmt.Errorf("malloc: failed to extend initial heap by %d bytes", a.cfg.ChunkSize)
	}
	a.insertFree(merged)
	a.debugCheck("init")
	return nil
}

func roundUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// extendHeap asks the heap provider for `want` (rounded up to 16) more
// bytes, writes the new block reusing the old epilogue's prevAlloc/
// prevMini bits, writes a fresh epilogue at the new high-water mark, and
// coalesces the new block with its predecessor if free. The caller is
// responsible for inserting the returned block into a free list — it is
// not free-listed yet, deliberately, so Allocate's miss path can hand it
// straight to split/writeBlock without a redundant insert-then-remove.
func (a *Allocator) extendHeap(want uint64) (off, bool) {
	rounded := roundUp(want, 16)
	if _, ok := a.region.Extend(int(rounded)); !ok {
		return nilOff, false
	}

	newBlock := a.epilogue
	old := a.header(newBlock)
	w := pack(rounded, false, prevAllocOfWord(old), prevMiniOfWord(old))
	a.setHeader(newBlock, w)
	if rounded > uint64(a.cfg.MinBlockSize) {
		a.setFooter(newBlock, w)
	}

	newEpilogue := newBlock + off(rounded)
	a.setHeader(newEpilogue, pack(0, true, false, false))
	a.epilogue = newEpilogue

	return a.coalesce(newBlock), true
}

// split writes b as allocated with size asize and carves the rest of b into
// a free tail, which it inserts into a free list. The caller ensures the
// remainder is >= MinBlockSize.
// It is written as three direct header/footer writes rather than two calls
// to writeBlock, because the tail does not exist as a real block until this
// function creates it — calling the generic writeBlock on a not-yet-real
// successor would read garbage bytes as its "existing" size/alloc state.
func (a *Allocator) split(b off, asize uint64) {
	old := a.header(b)
	wB := pack(asize, true, prevAllocOfWord(old), prevMiniOfWord(old))
	a.setHeader(b, wB)

	total := sizeOfWord(old)
	remainder := total - asize
	tail := b + off(asize)
	wT := pack(remainder, false, true, asize == uint64(a.cfg.MinBlockSize))
	a.setHeader(tail, wT)
	if remainder > uint64(a.cfg.MinBlockSize) {
		a.setFooter(tail, wT)
	}
	a.insertFree(tail)

	succ := tail + off(remainder)
	a.setPrevBits(succ, false, remainder == uint64(a.cfg.MinBlockSize))
}

// findFit performs a bounded best-of-k scan: starting
// at the bucket asize naturally indexes into, walk each bucket in
// increasing order, tracking the smallest acceptable (size >= asize)
// candidate seen within a budget of FindFitBudget acceptable candidates,
// and return the first bucket that yields one.
func (a *Allocator) findFit(asize uint64) (off, bool) {
	start := a.indexFor(asize)
	for i := start; i < a.cfg.NumSegs; i++ {
		var best off
		var bestSize uint64
		probes := 0
		for cur := a.seg[i]; cur != nilOff && probes < a.cfg.FindFitBudget; cur = a.freeNext(cur) {
			sz := a.sizeOf(cur)
			if sz < asize {
				continue
			}
			probes++
			if best == nilOff || sz < bestSize {
				best, bestSize = cur, sz
			}
		}
		if best != nilOff {
			return best, true
		}
	}
	return nilOff, false
}

// coalesce merges the just-freed block b (already written free by the
// caller) with whichever of its physical neighbors are
// also free. It returns the offset of the (possibly merged) block; the
// caller inserts it into a free list.
func (a *Allocator) coalesce(b off) off {
	size := a.sizeOf(b)
	prevFree := !a.prevAllocOf(b)
	next := a.nextBlock(b)
	nextFree := !a.isAlloc(next)

	switch {
	case !prevFree && !nextFree:
		return b
	case !prevFree && nextFree:
		a.removeFree(next)
		a.writeBlock(b, size+a.sizeOf(next), false)
		return b
	case prevFree && !nextFree:
		prev := a.prevBlock(b)
		a.removeFree(prev)
		a.writeBlock(prev, a.sizeOf(prev)+size, false)
		return prev
	default:
		prev := a.prevBlock(b)
		a.removeFree(prev)
		a.removeFree(next)
		a.writeBlock(prev, a.sizeOf(prev)+size+a.sizeOf(next), false)
		return prev
	}
}

func (a *Allocator) blockOf(p unsafe.Pointer) off {
	return off(uintptr(p)-uintptr(a.base)) - wordSize
}

func (a *Allocator) payloadPtr(b off) unsafe.Pointer {
	return a.ptr(b + wordSize)
}

// Allocate returns a 16-byte-aligned payload pointer of at least n bytes,
// or nil on OOM. Allocate(0) always returns nil.
func (a *Allocator) Allocate(n int) unsafe.Pointer {
	if n <= 0 {
		return nil
	}

	asize := roundUp(uint64(n)+wordSize, 16)
	if asize < uint64(a.cfg.MinBlockSize) {
		asize = uint64(a.cfg.MinBlockSize)
	}

	b, ok := a.findFit(asize)
	if ok {
		a.removeFree(b)
	} else {
		grow := asize
		if uint64(a.cfg.ChunkSize) > grow {
			grow = uint64(a.cfg.ChunkSize)
		}
		merged, ok2 := a.extendHeap(grow)
		if !ok2 {
			a.debugCheck("allocate:oom")
			return nil
		}
		b = merged
	}

	total := a.sizeOf(b)
	if total-asize >= uint64(a.cfg.MinBlockSize) {
		a.split(b, asize)
	} else {
		a.writeBlock(b, total, true)
	}

	a.debugCheck("allocate")
	return a.payloadPtr(b)
}

// Release frees the block at payload pointer p. Release(nil) is a no-op.
// p must point at the payload of a currently-allocated block — violating
// that precondition is undefined behavior; in debug builds the invariant
// checker will typically catch the resulting inconsistency on the next API
// entry.
func (a *Allocator) Release(p unsafe.Pointer) {
	if p == nil {
		return
	}
	b := a.blockOf(p)
	a.writeBlock(b, a.sizeOf(b), false)
	a.insertFree(a.coalesce(b))
	a.debugCheck("release")
}

// Reallocate resizes the allocation at p to n bytes:
// Reallocate(nil, n) == Allocate(n); Reallocate(p, 0) releases p and
// returns nil; otherwise a new block is allocated, min(n, old payload
// size) bytes are copied, the old block is released, and the new pointer
// is returned. If the new allocation fails, p is left untouched.
func (a *Allocator) Reallocate(p unsafe.Pointer, n int) unsafe.Pointer {
	if p == nil {
		return a.Allocate(n)
	}
	if n <= 0 {
		a.Release(p)
		return nil
	}

	b := a.blockOf(p)
	oldPayload := int(a.sizeOf(b)) - wordSize

	newP := a.Allocate(n)
	if newP == nil {
		return nil
	}

	copyN := oldPayload
	if n < copyN {
		copyN = n
	}
	a.region.Memcpy(newP, p, copyN)
	a.Release(p)
	return newP
}

// Callocate allocates space for count elements of size bytes each, zero
// filled, detecting multiplication overflow before it can under-allocate.
func (a *Allocator) Callocate(count, size int) unsafe.Pointer {
	if count <= 0 || size <= 0 {
		return nil
	}
	total := count * size
	if total/count != size {
		return nil
	}
	p := a.Allocate(total)
	if p == nil {
		return nil
	}
	a.region.Memset(p, 0, total)
	return p
}

// PayloadSize returns the usable payload size of the block at p (its block
// size minus the 8-byte header), for callers that want to know how much
// room an allocation actually has (e.g. the reallocate round-trip law).
func (a *Allocator) PayloadSize(p unsafe.Pointer) int {
	return int(a.sizeOf(a.blockOf(p))) - wordSize
}
