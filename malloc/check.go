package malloc

import (
	"log"
	"sort"

	"github.com/JasonH21/Malloc-Implementation/internal/blockhash"
)

// CheckHeap walks the heap twice — once as the implicit block list, once as
// the segregated free lists — and cross-checks every invariant between the
// two. It logs the first violation found (tagged with lineTag, the caller's name
// for where in the API surface the check ran) and returns false; it never
// panics itself, so callers that want a hard failure (the malloc_debug
// build) wrap it in debugCheck.
func (a *Allocator) CheckHeap(lineTag string) bool {
	_, heapFree, ok := a.walkHeapList(lineTag)
	if !ok {
		return false
	}
	segOffsets, ok := a.walkFreeLists(lineTag)
	if !ok {
		return false
	}

	// The two traversals visit free blocks in unrelated orders (ascending
	// physical address vs. LIFO-within-bucket), so the sets must be sorted
	// before hashing — otherwise the digest almost never matches even when
	// the underlying free-block sets are identical, and every call falls
	// through to the exact comparison below.
	sortedHeapFree := sortedCopy(heapFree)
	sortedSegFree := sortedCopy(segOffsets)

	if blockhash.Hash(toUint64s(sortedHeapFree)) == blockhash.Hash(toUint64s(sortedSegFree)) {
		return true
	}
	// Equal digests are accepted as equal sets. Differing digests mean the
	// sets differ; the exact comparison finds and logs the first disagreement.
	return a.compareFreeSets(lineTag, sortedHeapFree, sortedSegFree)
}

func sortedCopy(offsets []off) []off {
	cp := append([]off(nil), offsets...)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	return cp
}

func toUint64s(offsets []off) []uint64 {
	out := make([]uint64, len(offsets))
	for i, o := range offsets {
		out[i] = uint64(o)
	}
	return out
}

// walkHeapList sweeps the implicit block list from the first real block to
// the epilogue, checking per-block invariants and accumulating the set of
// free block offsets it encounters: alignment, size floor, coalescing
// completeness, and prevAlloc/prevMini agreement with the physical
// predecessor. It also checks the prologue and epilogue words and that no
// block runs past the epilogue.
func (a *Allocator) walkHeapList(lineTag string) ([]off, []off, bool) {
	var all, free []off
	prevWasFree := false

	if a.header(0) != pack(0, true, false, false) {
		log.Printf("malloc: [%s] prologue word is malformed", lineTag)
		return nil, nil, false
	}
	if ew := a.header(a.epilogue); sizeOfWord(ew) != 0 || !isAllocWord(ew) || a.epilogue%16 != wordSize {
		log.Printf("malloc: [%s] epilogue word at offset %d is malformed", lineTag, a.epilogue)
		return nil, nil, false
	}

	for b := off(wordSize); b != a.epilogue; b = a.nextBlock(b) {
		size := a.sizeOf(b)
		if size < uint64(a.cfg.MinBlockSize) || size%16 != 0 {
			log.Printf("malloc: [%s] block at offset %d has invalid size %d", lineTag, b, size)
			return nil, nil, false
		}
		if b+off(size) > a.epilogue {
			log.Printf("malloc: [%s] block at offset %d of size %d runs past the epilogue", lineTag, b, size)
			return nil, nil, false
		}
		alloc := a.isAlloc(b)
		if !alloc {
			if prevWasFree {
				log.Printf("malloc: [%s] two physically adjacent free blocks at/near offset %d were not coalesced", lineTag, b)
				return nil, nil, false
			}
			if size > uint64(a.cfg.MinBlockSize) && a.footer(b) != a.header(b) {
				log.Printf("malloc: [%s] free block at offset %d has a footer that does not mirror its header", lineTag, b)
				return nil, nil, false
			}
			free = append(free, b)
		}

		wantPrevAlloc := true
		wantPrevMini := false
		if len(all) > 0 {
			predecessor := all[len(all)-1]
			wantPrevAlloc = a.isAlloc(predecessor)
			wantPrevMini = a.sizeOf(predecessor) == uint64(a.cfg.MinBlockSize)
		}
		if a.prevAllocOf(b) != wantPrevAlloc || a.prevMiniOf(b) != wantPrevMini {
			log.Printf("malloc: [%s] block at offset %d has stale prevAlloc/prevMini bits", lineTag, b)
			return nil, nil, false
		}

		all = append(all, b)
		prevWasFree = !alloc
	}
	return all, free, true
}

// walkFreeLists walks every segregated bucket, checking that each block
// lands in the bucket its size indexes to, that doubly-linked buckets'
// prev/next pointers agree with each other, that every free-list pointer
// lies inside the heap, and that no block appears twice, accumulating the
// set of offsets found along the way.
func (a *Allocator) walkFreeLists(lineTag string) ([]off, bool) {
	seen := make(map[off]bool)
	var all []off

	for i := 0; i < a.cfg.NumSegs; i++ {
		var prev off = nilOff
		for cur := a.seg[i]; cur != nilOff; cur = a.freeNext(cur) {
			if cur < off(wordSize) || cur >= a.epilogue {
				log.Printf("malloc: [%s] free-list pointer %d lies outside the heap", lineTag, cur)
				return nil, false
			}
			if seen[cur] {
				log.Printf("malloc: [%s] block at offset %d appears twice in the free lists", lineTag, cur)
				return nil, false
			}
			seen[cur] = true

			if a.isAlloc(cur) {
				log.Printf("malloc: [%s] block at offset %d is in a free list but marked allocated", lineTag, cur)
				return nil, false
			}
			if a.indexFor(a.sizeOf(cur)) != i {
				log.Printf("malloc: [%s] block at offset %d of size %d is in bucket %d, wants bucket %d", lineTag, cur, a.sizeOf(cur), i, a.indexFor(a.sizeOf(cur)))
				return nil, false
			}
			if i != 0 && a.freePrev(cur) != prev {
				log.Printf("malloc: [%s] block at offset %d has a prev pointer inconsistent with its predecessor in bucket %d", lineTag, cur, i)
				return nil, false
			}

			all = append(all, cur)
			prev = cur
		}
	}
	return all, true
}

func (a *Allocator) compareFreeSets(lineTag string, heapFree, segFree []off) bool {
	want := append([]off(nil), heapFree...)
	got := append([]off(nil), segFree...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })

	if len(want) != len(got) {
		log.Printf("malloc: [%s] heap walk found %d free blocks, free lists found %d", lineTag, len(want), len(got))
		return false
	}
	for i := range want {
		if want[i] != got[i] {
			log.Printf("malloc: [%s] free block sets disagree at position %d: heap walk %d, free lists %d", lineTag, i, want[i], got[i])
			return false
		}
	}
	return true
}
