package malloc

// Free-block payload layout:
//   - mini-block (size == MinBlockSize): a single `next` pointer at b+8,
//     singly-linked, no `prev`, no footer.
//   - non-mini free block: `next` at b+8, `prev` at b+16, a footer in the
//     last 8 bytes mirroring the header.
//
// Both pointers are stored as `off` values — byte offsets from the heap
// base — directly in the block's own bytes, so a free block's own storage
// doubles as the free list's link nodes with no separate bookkeeping
// structure.

func (a *Allocator) freeNext(b off) off {
	return off(*(*uint64)(a.ptr(b + wordSize)))
}

func (a *Allocator) setFreeNext(b, v off) {
	*(*uint64)(a.ptr(b + wordSize)) = uint64(v)
}

func (a *Allocator) freePrev(b off) off {
	return off(*(*uint64)(a.ptr(b + 2*wordSize)))
}

func (a *Allocator) setFreePrev(b, v off) {
	*(*uint64)(a.ptr(b + 2*wordSize)) = uint64(v)
}

// indexFor returns 0 when size <= MinBlockSize (the mini-block bucket),
// otherwise the smallest i such that size < MinBlockSize*2^(i+1), or the
// top bucket as a fallback. Because every real block size is a multiple of
// 16 (the alignment invariant), with the default MinBlockSize of 16 the mini
// bucket only ever holds blocks of size exactly MinBlockSize. A larger
// MinBlockSize also sends the sizes below 2*MinBlockSize to bucket 0.
func (a *Allocator) indexFor(size uint64) int {
	min := uint64(a.cfg.MinBlockSize)
	if size <= min {
		return 0
	}
	last := a.cfg.NumSegs - 1
	for i := 0; i < last; i++ {
		if size < min<<uint(i+1) {
			return i
		}
	}
	return last
}

// insertFree pushes b onto the head of its size-class bucket (LIFO).
func (a *Allocator) insertFree(b off) {
	i := a.indexFor(a.sizeOf(b))
	if i == 0 {
		a.setFreeNext(b, a.seg[0])
		a.seg[0] = b
		return
	}
	head := a.seg[i]
	a.setFreePrev(b, nilOff)
	a.setFreeNext(b, head)
	if head != nilOff {
		a.setFreePrev(head, b)
	}
	a.seg[i] = b
}

// removeFree unlinks b from its size-class bucket.
func (a *Allocator) removeFree(b off) {
	i := a.indexFor(a.sizeOf(b))
	if i == 0 {
		if a.seg[0] == b {
			a.seg[0] = a.freeNext(b)
			return
		}
		for cur := a.seg[0]; cur != nilOff; cur = a.freeNext(cur) {
			if a.freeNext(cur) == b {
				a.setFreeNext(cur, a.freeNext(b))
				return
			}
		}
		return
	}
	prev := a.freePrev(b)
	next := a.freeNext(b)
	if prev != nilOff {
		a.setFreeNext(prev, next)
	} else {
		a.seg[i] = next
	}
	if next != nilOff {
		a.setFreePrev(next, prev)
	}
}
