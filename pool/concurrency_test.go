package pool

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestConcurrent_AllocFreeCycles runs N workers, each doing M alloc/free
// cycles of worker-specific sizes against one shared pool. Every worker fills
// its blocks with a unique byte pattern and verifies the pattern before
// freeing, so any descriptor-table corruption shows up as a pattern mismatch.
func TestConcurrent_AllocFreeCycles(t *testing.T) {
	const (
		workers = 8
		cycles  = 500
	)

	p := New(64 * 1024)
	defer p.Deinit()

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			pattern := byte(0xA0 + w)
			rng := rand.New(rand.NewSource(int64(w) + 1))
			// Disjoint size ranges per worker.
			base := 8 * (w + 1)

			for c := 0; c < cycles; c++ {
				size := base + 8*rng.Intn(4)
				buf := p.Alloc(size)
				if buf == nil {
					// Transient exhaustion under contention is legal.
					continue
				}
				for i := range buf {
					buf[i] = pattern
				}
				if c%3 == 0 {
					if grown := p.Resize(buf, size*2); grown != nil {
						buf = grown
						for i := range buf[:size] {
							if buf[i] != pattern {
								return fmt.Errorf("worker %d: corrupt byte %d after resize", w, i)
							}
						}
						for i := size; i < len(buf); i++ {
							buf[i] = pattern
						}
					}
				}
				for i := range buf {
					if buf[i] != pattern {
						return fmt.Errorf("worker %d: corrupt byte %d in cycle %d", w, i, c)
					}
				}
				p.Free(buf)
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())

	// Quiescent state: everything freed, arena back to one free block.
	verifyPartition(t, p)
	require.Equal(t, p.Capacity(), p.FreeBytes())
	require.Len(t, p.Blocks(), 1)
}

// TestConcurrent_MixedResize hammers Resize's three paths concurrently.
func TestConcurrent_MixedResize(t *testing.T) {
	const workers = 4

	p := New(32 * 1024)
	defer p.Deinit()

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			pattern := byte(0x10 + w)
			rng := rand.New(rand.NewSource(int64(w) + 99))

			for c := 0; c < 200; c++ {
				buf := p.Alloc(64)
				if buf == nil {
					continue
				}
				for i := range buf {
					buf[i] = pattern
				}
				for step := 0; step < 4; step++ {
					next := p.Resize(buf, 16+rng.Intn(256))
					if next == nil {
						break
					}
					buf = next
					if len(buf) == 0 {
						break
					}
					n := min(len(buf), 16)
					for i := 0; i < n; i++ {
						if buf[i] != pattern {
							return fmt.Errorf("worker %d: lost byte %d across resize", w, i)
						}
					}
					for i := range buf {
						buf[i] = pattern
					}
				}
				p.Free(buf)
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	verifyPartition(t, p)
	require.Equal(t, p.Capacity(), p.FreeBytes())
}
