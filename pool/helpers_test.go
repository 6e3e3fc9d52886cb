package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// verifyPartition checks the central invariant: the descriptor table tiles
// [0, capacity) in offset order with no gaps, no overlaps, and no two
// adjacent free blocks.
func verifyPartition(t testing.TB, p *Pool) {
	t.Helper()

	blocks := p.Blocks()
	capacity := p.Capacity()

	if capacity == 0 {
		require.Empty(t, blocks, "degenerate pool must have no descriptors")
		return
	}

	require.NotEmpty(t, blocks)
	require.Equal(t, 0, blocks[0].Offset, "first block must start at offset 0")

	next := 0
	freeSum, allocSum := 0, 0
	for i, b := range blocks {
		require.Equal(t, next, b.Offset, "block %d leaves a gap or overlaps", i)
		require.Positive(t, b.Size, "block %d has non-positive size", i)
		require.Zero(t, b.Size%8, "block %d size not quantum-aligned", i)
		if i > 0 && b.Free {
			require.False(t, blocks[i-1].Free,
				"blocks %d and %d are adjacent and both free", i-1, i)
		}
		if b.Free {
			freeSum += b.Size
		} else {
			allocSum += b.Size
		}
		next = b.Offset + b.Size
	}

	require.Equal(t, capacity, next, "blocks must tile the arena exactly")
	require.Equal(t, capacity, freeSum+allocSum, "no-loss invariant violated")
	require.Equal(t, freeSum, p.FreeBytes())
}

// mustAlloc allocates or fails the test.
func mustAlloc(t testing.TB, p *Pool, size int) []byte {
	t.Helper()
	buf := p.Alloc(size)
	require.NotNil(t, buf, "Alloc(%d) exhausted unexpectedly", size)
	require.Len(t, buf, size)
	return buf
}

// offsetOf resolves a handle's arena offset or fails the test.
func offsetOf(t testing.TB, p *Pool, ptr []byte) int {
	t.Helper()
	off, ok := p.OffsetOf(ptr)
	require.True(t, ok, "handle not traceable to a block")
	return off
}
