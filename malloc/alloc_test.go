package malloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	a, err := NewAllocatorWithConfig(DefaultConfig(), 1<<24)
	require.NoError(t, err)
	return a
}

func payloadBytes(p unsafe.Pointer, n int) []byte {
	return unsafe.Slice((*byte)(p), n)
}

func TestAllocateZeroReturnsNil(t *testing.T) {
	a := newTestAllocator(t)
	assert.Nil(t, a.Allocate(0))
	assert.Nil(t, a.Allocate(-1))
}

func TestAllocateReturnsAligned16ByteBoundary(t *testing.T) {
	a := newTestAllocator(t)
	for _, n := range []int{1, 7, 16, 17, 100, 4096, 9000} {
		p := a.Allocate(n)
		require.NotNil(t, p)
		assert.Zero(t, uintptr(p)%16, "n=%d", n)
		assert.True(t, a.PayloadSize(p) >= n)
	}
	assert.True(t, a.CheckHeap("TestAllocateReturnsAligned16ByteBoundary"))
}

func TestAllocationsDoNotOverlap(t *testing.T) {
	a := newTestAllocator(t)
	var ptrs []unsafe.Pointer
	var sizes []int
	for _, n := range []int{8, 24, 1, 4000, 16, 500} {
		p := a.Allocate(n)
		require.NotNil(t, p)
		ptrs = append(ptrs, p)
		sizes = append(sizes, a.PayloadSize(p))
	}
	for i := range ptrs {
		lo := uintptr(ptrs[i])
		hi := lo + uintptr(sizes[i])
		for j := range ptrs {
			if i == j {
				continue
			}
			other := uintptr(ptrs[j])
			assert.False(t, other >= lo && other < hi, "ptr %d falls inside ptr %d's region", j, i)
		}
	}
}

func TestReleaseThenReallocateSameSizeReusesSpace(t *testing.T) {
	a := newTestAllocator(t)
	p1 := a.Allocate(64)
	require.NotNil(t, p1)
	a.Release(p1)
	assert.True(t, a.CheckHeap("after release"))

	p2 := a.Allocate(64)
	require.NotNil(t, p2)
	assert.Equal(t, p1, p2, "freeing then re-requesting the same size should reuse the same block")
}

func TestSplitProducesIndependentFreeTail(t *testing.T) {
	a := newTestAllocator(t)
	// A large block, most of which is released via a realloc-shrink-like
	// path is hard to trigger directly since there's no explicit shrink
	// primitive; instead verify split's effect indirectly: allocate a big
	// block, free it, then allocate a small one out of the same free run
	// and confirm a second small allocation still succeeds from the
	// remaining tail without growing the heap bounds unexpectedly.
	big := a.Allocate(4000)
	require.NotNil(t, big)
	a.Release(big)
	epilogueBefore := a.epilogue

	small1 := a.Allocate(32)
	require.NotNil(t, small1)
	small2 := a.Allocate(32)
	require.NotNil(t, small2)
	assert.NotEqual(t, small1, small2)
	assert.Equal(t, epilogueBefore, a.epilogue, "both small allocations must come from the freed run")
	assert.True(t, a.CheckHeap("after split reuse"))
}

func TestCoalesceMergesAdjacentFreeBlocks(t *testing.T) {
	a := newTestAllocator(t)
	p1 := a.Allocate(64)
	p2 := a.Allocate(64)
	p3 := a.Allocate(64)
	require.NotNil(t, p1)
	require.NotNil(t, p2)
	require.NotNil(t, p3)

	a.Release(p1)
	a.Release(p3)
	a.Release(p2)
	assert.True(t, a.CheckHeap("after releasing all three"))

	// All three should have coalesced into one run; a request spanning
	// roughly their combined payload should succeed without growing the
	// heap into fresh territory (we can't observe that directly, but the
	// invariant checker over the merged free list is the real assertion).
	big := a.Allocate(64*3 + 16)
	assert.NotNil(t, big)
}

func TestReallocateNilActsAsAllocate(t *testing.T) {
	a := newTestAllocator(t)
	p := a.Reallocate(nil, 32)
	assert.NotNil(t, p)
	assert.True(t, a.PayloadSize(p) >= 32)
}

func TestReallocateZeroSizeReleases(t *testing.T) {
	a := newTestAllocator(t)
	p := a.Allocate(32)
	require.NotNil(t, p)
	assert.Nil(t, a.Reallocate(p, 0))
	assert.True(t, a.CheckHeap("after realloc-to-zero"))
}

func TestReallocateGrowPreservesPrefix(t *testing.T) {
	a := newTestAllocator(t)
	p := a.Allocate(32)
	require.NotNil(t, p)
	src := payloadBytes(p, 32)
	for i := range src {
		src[i] = byte(i)
	}

	grown := a.Reallocate(p, 4096)
	require.NotNil(t, grown)
	got := payloadBytes(grown, 32)
	for i := range got {
		assert.Equal(t, byte(i), got[i])
	}
	assert.True(t, a.CheckHeap("after grow"))
}

func TestReallocateShrinkPreservesPrefix(t *testing.T) {
	a := newTestAllocator(t)
	p := a.Allocate(4096)
	require.NotNil(t, p)
	src := payloadBytes(p, 4096)
	for i := 0; i < 32; i++ {
		src[i] = byte(i + 1)
	}

	shrunk := a.Reallocate(p, 16)
	require.NotNil(t, shrunk)
	got := payloadBytes(shrunk, 16)
	for i := range got {
		assert.Equal(t, byte(i+1), got[i])
	}
	assert.True(t, a.CheckHeap("after shrink"))
}

func TestCallocateZerosMemory(t *testing.T) {
	a := newTestAllocator(t)
	p := a.Callocate(16, 8)
	require.NotNil(t, p)
	for _, b := range payloadBytes(p, 128) {
		assert.Zero(t, b)
	}
}

func TestCallocateOverflowReturnsNil(t *testing.T) {
	a := newTestAllocator(t)
	huge := int(^uint(0) >> 1)
	assert.Nil(t, a.Callocate(huge, huge))
	assert.Nil(t, a.Callocate(0, 8))
	assert.Nil(t, a.Callocate(8, 0))
}

func TestHeapGrowsUnderSustainedAllocation(t *testing.T) {
	a := newTestAllocator(t)
	var ptrs []unsafe.Pointer
	for i := 0; i < 2000; i++ {
		p := a.Allocate(64)
		require.NotNil(t, p)
		ptrs = append(ptrs, p)
	}
	assert.True(t, a.CheckHeap("after sustained allocation"))
	for _, p := range ptrs {
		a.Release(p)
	}
	assert.True(t, a.CheckHeap("after releasing everything"))
}
