package malloc

import "unsafe"

const wordSize = 8

// off is a block reference: a byte offset from the heap provider's base
// address. Blocks are represented as offsets rather than raw unsafe.Pointer
// values because the free-list pointers a free block embeds in its own
// payload bytes need to survive being read back out of arbitrary arena
// bytes; an offset round-trips through a plain uint64 without the GC-safety
// hazards of stashing a pointer value outside the type system. nilOff
// (zero) can never be a real block's address: offset 0 is always the
// prologue word, which is never free.
type off uint64

const nilOff off = 0

func (a *Allocator) ptr(b off) unsafe.Pointer {
	return unsafe.Add(a.base, b)
}

func (a *Allocator) header(b off) uint64 {
	return *(*uint64)(a.ptr(b))
}

func (a *Allocator) setHeader(b off, w uint64) {
	*(*uint64)(a.ptr(b)) = w
}

func (a *Allocator) footer(b off) uint64 {
	size := a.sizeOf(b)
	return *(*uint64)(a.ptr(b + off(size) - wordSize))
}

func (a *Allocator) setFooter(b off, w uint64) {
	size := sizeOfWord(w)
	*(*uint64)(a.ptr(b + off(size) - wordSize)) = w
}

func (a *Allocator) sizeOf(b off) uint64    { return sizeOfWord(a.header(b)) }
func (a *Allocator) isAlloc(b off) bool     { return isAllocWord(a.header(b)) }
func (a *Allocator) prevAllocOf(b off) bool { return prevAllocOfWord(a.header(b)) }
func (a *Allocator) prevMiniOf(b off) bool  { return prevMiniOfWord(a.header(b)) }

// nextBlock returns b's physically-following block. Undefined (and never
// called) on the epilogue.
func (a *Allocator) nextBlock(b off) off {
	return b + off(a.sizeOf(b))
}

// prevBlock returns b's physically-preceding block. Only valid when
// !prevAllocOf(b).
func (a *Allocator) prevBlock(b off) off {
	if a.prevMiniOf(b) {
		return b - off(a.cfg.MinBlockSize)
	}
	w := *(*uint64)(a.ptr(b - wordSize))
	return b - off(sizeOfWord(w))
}

// setPrevBits rewrites only the prevAlloc/prevMini bits of b's header
// (and, if b is a free non-mini block, its mirroring footer), leaving b's
// own size and alloc state untouched. This is the narrow "fix up the
// following block" side effect needed after any write that changes another
// block's alloc state or size: only the two propagated bits are
// semantically required, so the rest of b's header is left alone rather
// than rewritten wholesale.
func (a *Allocator) setPrevBits(b off, prevAlloc, prevMini bool) {
	old := a.header(b)
	w := pack(sizeOfWord(old), isAllocWord(old), prevAlloc, prevMini)
	a.setHeader(b, w)
	if !isAllocWord(w) && sizeOfWord(w) > uint64(a.cfg.MinBlockSize) {
		a.setFooter(b, w)
	}
}

// writeBlock writes b's header (and, for a non-mini free block, its
// mirroring footer), preserving b's existing prevAlloc/prevMini bits, and
// propagates b's new alloc state and mini-ness to the block that physically
// follows it so that block's prevAlloc/prevMini bits remain truthful. A
// freshly-allocated block never gets a footer written — those bytes become
// payload.
func (a *Allocator) writeBlock(b off, size uint64, alloc bool) {
	old := a.header(b)
	w := pack(size, alloc, prevAllocOfWord(old), prevMiniOfWord(old))
	a.setHeader(b, w)
	if !alloc && size > uint64(a.cfg.MinBlockSize) {
		a.setFooter(b, w)
	}
	a.setPrevBits(a.nextBlock(b), alloc, size == uint64(a.cfg.MinBlockSize))
}
