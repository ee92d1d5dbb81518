package malloc

// Six concrete allocator scenarios, each as its own test asserting the
// literal expected end state rather than just "CheckHeap holds".

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioFreshInitThenOneByteAlloc(t *testing.T) {
	a := newTestAllocator(t)
	p := a.Allocate(1)
	require.NotNil(t, p)
	assert.Zero(t, uintptr(p)%16)
	assert.True(t, a.CheckHeap("scenario 1"))
	assert.Equal(t, uint64(a.cfg.MinBlockSize), a.sizeOf(a.blockOf(p)))
}

func TestScenarioSplitCarvesTail(t *testing.T) {
	a := newTestAllocator(t)
	p := a.Allocate(32)
	require.NotNil(t, p)

	b := a.blockOf(p)
	assert.Equal(t, uint64(48), a.sizeOf(b), "32-byte payload + 8-byte header rounds up to 48")
	assert.True(t, a.isAlloc(b))

	tail := a.nextBlock(b)
	assert.False(t, a.isAlloc(tail), "the remainder of the initial free block must still be free")
	assert.True(t, a.CheckHeap("scenario 2"))
}

func TestScenarioCoalesceForward(t *testing.T) {
	a := newTestAllocator(t)
	pa := a.Allocate(64)
	pb := a.Allocate(64)
	pc := a.Allocate(64)
	require.NotNil(t, pa)
	require.NotNil(t, pb)
	require.NotNil(t, pc)

	a.Release(pb)
	a.Release(pc)
	assert.True(t, a.CheckHeap("scenario 3"))

	// Exactly one free block should sit between a's block and the epilogue.
	blockA := a.blockOf(pa)
	freeBlock := a.nextBlock(blockA)
	assert.False(t, a.isAlloc(freeBlock))
	assert.Equal(t, a.epilogue, a.nextBlock(freeBlock), "the merged free block must run all the way to the epilogue")
}

func TestScenarioCoalesceBothSides(t *testing.T) {
	a := newTestAllocator(t)
	pa := a.Allocate(64)
	pb := a.Allocate(64)
	pc := a.Allocate(64)
	require.NotNil(t, pa)
	require.NotNil(t, pb)
	require.NotNil(t, pc)

	sizeA := a.sizeOf(a.blockOf(pa))
	sizeB := a.sizeOf(a.blockOf(pb))
	sizeC := a.sizeOf(a.blockOf(pc))
	// The free remainder after c is merged in as well once c is released.
	sizeTail := a.sizeOf(a.nextBlock(a.blockOf(pc)))
	blockA := a.blockOf(pa)

	a.Release(pa)
	a.Release(pc)
	a.Release(pb)
	assert.True(t, a.CheckHeap("scenario 4"))

	assert.False(t, a.isAlloc(blockA))
	assert.Equal(t, sizeA+sizeB+sizeC+sizeTail, a.sizeOf(blockA))
}

func TestScenarioMiniBlockPath(t *testing.T) {
	a := newTestAllocator(t)
	p := a.Allocate(1)
	q := a.Allocate(1)
	require.NotNil(t, p)
	require.NotNil(t, q)

	bp := a.blockOf(p)
	bq := a.blockOf(q)
	require.Equal(t, uint64(a.cfg.MinBlockSize), a.sizeOf(bp))
	require.Equal(t, uint64(a.cfg.MinBlockSize), a.sizeOf(bq))

	a.Release(p)
	assert.Equal(t, bp, a.seg[0], "a released mini-block must enter bucket 0")

	a.Release(q)
	assert.True(t, a.CheckHeap("scenario 5"))
	// Both mini-blocks should have coalesced into a single larger free
	// block, which can no longer live in the mini bucket.
	merged := a.seg[0]
	if merged == nilOff {
		// Coalescing moved the result out of bucket 0 entirely, as expected
		// when the two mini-blocks were physically adjacent.
		return
	}
	assert.NotEqual(t, uint64(a.cfg.MinBlockSize), a.sizeOf(merged))
}

func TestScenarioCallocateOverflowGuard(t *testing.T) {
	a := newTestAllocator(t)
	before := a.epilogue

	huge := int(^uint(0) >> 1)
	assert.Nil(t, a.Callocate(huge, 2))
	assert.Equal(t, before, a.epilogue, "a rejected overflowing callocate must not mutate the heap")
}
