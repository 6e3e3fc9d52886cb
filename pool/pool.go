package pool

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/internal/mmarena"
)

// Runtime trace flag for allocation logging - controlled by MEMKIT_LOG_ALLOC
// env var.
var logAlloc = os.Getenv("MEMKIT_LOG_ALLOC") != ""

// block is one descriptor in the out-of-line metadata table. Descriptors are
// ordered by offset and tile the arena completely:
//
//	blocks[i].off + blocks[i].size == blocks[i+1].off
//
// for every adjacent pair. No gaps, no overlaps.
type block struct {
	off  int
	size int // payload bytes, always a multiple of format.Quantum
	free bool
}

// zeroBacking backs the sentinel handle returned for zero-size allocations.
// The sentinel is a zero-length slice whose data pointer is stable and
// outside every arena, so repeated Alloc(0) calls return the same value and
// it can never collide with a real block start.
var zeroBacking [1]byte

func zeroSentinel() []byte {
	return zeroBacking[:0]
}

// Pool is a first-fit free-list allocator over a fixed-size arena. The zero
// value is an uninitialized pool; call Init (or use New) before allocating.
// All methods are safe for concurrent use.
type Pool struct {
	mu sync.Mutex

	arena    []byte
	release  func() error
	capacity int

	// blocks is the descriptor table, ordered by offset. Beyond the tiling
	// invariant above, the table is kept canonical: no two adjacent entries
	// are both free. Its length is inherently bounded by capacity/Quantum.
	blocks []block

	stats Stats
}

// New returns a pool initialized with an arena of capacity bytes.
func New(capacity int) *Pool {
	p := &Pool{}
	p.Init(capacity)
	return p
}

// Init reserves a fresh arena of exactly capacity bytes and installs a single
// free block spanning it. A pool that is already initialized is torn down
// first, so re-Init never leaks the prior mapping; every handle from the
// previous arena becomes invalid. A capacity of 0 yields a degenerate pool
// on which every allocation fails.
//
// Init aborts the process when the OS cannot supply the mapping: a pool
// whose arena failed to materialize is not recoverable mid-call.
func (p *Pool) Init(capacity int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.deinitLocked()

	if capacity < 0 {
		capacity = 0
	}

	arena, release, err := mmarena.Map(capacity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pool: cannot reserve %d byte arena: %v\n", capacity, err)
		os.Exit(1)
	}

	p.arena = arena
	p.release = release
	p.capacity = capacity
	p.stats = Stats{}

	if capacity > 0 {
		p.blocks = append(p.blocks[:0], block{off: 0, size: capacity, free: true})
	}
}

// Deinit returns the arena to the OS and discards every descriptor. Calling
// it on an uninitialized pool is a no-op. Outstanding handles from prior
// Alloc calls become dangling; the pool does not track them.
func (p *Pool) Deinit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deinitLocked()
}

func (p *Pool) deinitLocked() {
	if p.release != nil {
		_ = p.release()
	}
	p.arena = nil
	p.release = nil
	p.capacity = 0
	p.blocks = nil
}

// Alloc returns a handle to size bytes of arena storage, or nil when no free
// block is large enough. Exhaustion is a caller-visible condition, not an
// internal retry.
//
// Size 0 returns the shared zero-size sentinel: a stable, non-nil handle
// that owns no arena storage and must never be written through. Free and
// Resize accept it and treat it as unallocated.
func (p *Pool) Alloc(size int) []byte {
	if size == 0 {
		return zeroSentinel()
	}
	if size < 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocLocked(size)
}

// allocLocked implements first-fit allocation. Caller holds p.mu.
func (p *Pool) allocLocked(size int) []byte {
	p.stats.AllocCalls++

	need := format.Align(size)
	if need < size || need > p.capacity { // overflow or larger than the arena
		p.stats.FailedAllocs++
		return nil
	}

	for i := range p.blocks {
		if !p.blocks[i].free || p.blocks[i].size < need {
			continue
		}
		p.splitLocked(i, need)
		b := p.blocks[i]
		p.blocks[i].free = false
		p.stats.BytesAllocated += int64(b.size)
		return p.handle(b.off, size, b.size)
	}

	p.stats.FailedAllocs++
	if logAlloc {
		fmt.Fprintf(os.Stderr, "[POOL] exhausted: need=%d largest=%d free=%d\n",
			need, p.largestFreeLocked(), p.freeBytesLocked())
	}
	return nil
}

// Free returns ptr's block to the free list and merges it with any free
// neighbor. Nil handles, the zero-size sentinel, pointers that do not map to
// the start of a known block, and blocks that are already free are all
// silently ignored: corrupting the descriptor table over a foreign or stale
// pointer is worse than doing nothing.
func (p *Pool) Free(ptr []byte) {
	if len(ptr) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.freeLocked(ptr)
}

// freeLocked implements Free. Caller holds p.mu.
func (p *Pool) freeLocked(ptr []byte) {
	p.stats.FreeCalls++

	i := p.lookupLocked(ptr)
	if i < 0 || p.blocks[i].free {
		return
	}

	p.blocks[i].free = true
	p.stats.BytesFreed += int64(p.blocks[i].size)
	p.coalesceLocked(i)
}

// coalesceLocked merges blocks[i] with its immediate neighbors when they are
// free: one merge forward, one merge backward. Under the canonical form that
// is always complete, because a block has at most two neighbors and neither
// can itself border another free block.
func (p *Pool) coalesceLocked(i int) {
	if next := i + 1; next < len(p.blocks) && p.blocks[next].free {
		p.stats.CoalesceForward++
		p.blocks[i].size += p.blocks[next].size
		p.removeLocked(next)
	}
	if prev := i - 1; prev >= 0 && p.blocks[prev].free {
		p.stats.CoalesceBackward++
		p.blocks[prev].size += p.blocks[i].size
		p.removeLocked(i)
	}
}

// Resize changes ptr's block to newSize bytes and returns the (possibly
// relocated) handle.
//
//   - nil ptr: behaves as Alloc(newSize)
//   - zero-size sentinel: owns nothing, so it also behaves as Alloc
//   - newSize 0: frees ptr and returns the zero-size sentinel
//   - shrink: in place; the address never changes, and a useful remainder is
//     split off and returned to the free list
//   - grow: in place when the directly-following free block covers the
//     difference; otherwise the block moves, min(old, new) bytes are copied
//     and the old block is freed
//
// When growth is impossible, Resize returns nil and the original block and
// its contents remain valid and untouched. A pointer that does not map to an
// allocated block returns nil without touching anything.
func (p *Pool) Resize(ptr []byte, newSize int) []byte {
	if len(ptr) == 0 {
		return p.Alloc(newSize)
	}
	if newSize == 0 {
		p.Free(ptr)
		return zeroSentinel()
	}
	if newSize < 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.ResizeCalls++

	i := p.lookupLocked(ptr)
	if i < 0 || p.blocks[i].free {
		return nil
	}

	need := format.Align(newSize)
	if need < newSize {
		return nil
	}
	oldSize := p.blocks[i].size

	// Shrink, or the block already fits: keep the address.
	if need <= oldSize {
		p.splitLocked(i, need)
		b := p.blocks[i]
		p.stats.InPlaceShrinks++
		p.stats.BytesFreed += int64(oldSize - b.size)
		return p.handle(b.off, newSize, b.size)
	}

	// Grow in place by absorbing the directly-following free block.
	if next := i + 1; next < len(p.blocks) && p.blocks[next].free &&
		oldSize+p.blocks[next].size >= need {
		p.blocks[i].size += p.blocks[next].size
		p.removeLocked(next)
		p.splitLocked(i, need)
		b := p.blocks[i]
		p.stats.InPlaceGrows++
		p.stats.BytesAllocated += int64(b.size - oldSize)
		return p.handle(b.off, newSize, b.size)
	}

	// Move: fresh block, copy, release the old one. Internal entry points
	// only - the lock is already held and must not be re-entered.
	dst := p.allocLocked(newSize)
	if dst == nil {
		if logAlloc {
			fmt.Fprintf(os.Stderr, "[POOL] resize failed: old=%d need=%d largest=%d\n",
				oldSize, need, p.largestFreeLocked())
		}
		return nil
	}
	copy(dst, ptr)
	p.freeLocked(ptr)
	p.stats.MovedResizes++
	return dst
}

// Capacity returns the arena size the pool was initialized with.
func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// OffsetOf returns the arena offset of a handle obtained from Alloc. It
// reports false for nil, sentinel, or foreign handles. Callers that link
// pool-resident records by offset use this as the inverse of At.
func (p *Pool) OffsetOf(ptr []byte) (int, bool) {
	if len(ptr) == 0 {
		return 0, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.lookupLocked(ptr)
	if i < 0 {
		return 0, false
	}
	return p.blocks[i].off, true
}

// At returns the handle for the allocated block starting at exactly off. It
// reports false when off is not the start of a live allocation.
func (p *Pool) At(off int) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.findLocked(off)
	if i < 0 || p.blocks[i].free {
		return nil, false
	}
	b := p.blocks[i]
	return p.handle(b.off, b.size, b.size), true
}

// ----------------------------------------------------------------------------
// Internal helpers (lock held)
// ----------------------------------------------------------------------------

// splitLocked carves need bytes out of blocks[i] and returns the remainder to
// the free list. The remainder merges into a directly-following free block
// when one exists, preserving the canonical form. A remainder of at most one
// quantum is too small to be useful and stays inside the block as internal
// fragmentation.
func (p *Pool) splitLocked(i, need int) {
	rem := p.blocks[i].size - need
	if rem <= format.Quantum {
		return
	}
	p.stats.Splits++
	p.blocks[i].size = need
	remOff := p.blocks[i].off + need

	if next := i + 1; next < len(p.blocks) && p.blocks[next].free {
		p.blocks[next].off = remOff
		p.blocks[next].size += rem
		return
	}
	p.insertLocked(i+1, block{off: remOff, size: rem, free: true})
}

// lookupLocked recovers the descriptor index owning ptr's data pointer, or -1
// when the pointer is outside the arena or does not land on a block start.
func (p *Pool) lookupLocked(ptr []byte) int {
	if p.capacity == 0 || len(ptr) == 0 {
		return -1
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(p.arena)))
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(ptr)))
	if addr < base || addr >= base+uintptr(p.capacity) {
		return -1
	}
	return p.findLocked(int(addr - base))
}

// findLocked binary-searches the descriptor table for the block starting at
// exactly off. Interior offsets return -1.
func (p *Pool) findLocked(off int) int {
	lo, hi := 0, len(p.blocks)-1
	for lo <= hi {
		mid := (lo + hi) >> 1
		b := p.blocks[mid]
		switch {
		case off < b.off:
			hi = mid - 1
		case off >= b.off+b.size:
			lo = mid + 1
		case b.off == off:
			return mid
		default:
			return -1
		}
	}
	return -1
}

// handle builds the caller-visible slice: len is the requested size, the data
// pointer is arena base + off, and the capacity is capped at the block end so
// an append cannot escape the block.
func (p *Pool) handle(off, size, blockSize int) []byte {
	return p.arena[off : off+size : off+blockSize]
}

func (p *Pool) insertLocked(i int, b block) {
	p.blocks = append(p.blocks, block{})
	copy(p.blocks[i+1:], p.blocks[i:])
	p.blocks[i] = b
}

func (p *Pool) removeLocked(i int) {
	copy(p.blocks[i:], p.blocks[i+1:])
	p.blocks = p.blocks[:len(p.blocks)-1]
}

func (p *Pool) freeBytesLocked() int {
	total := 0
	for i := range p.blocks {
		if p.blocks[i].free {
			total += p.blocks[i].size
		}
	}
	return total
}

func (p *Pool) largestFreeLocked() int {
	largest := 0
	for i := range p.blocks {
		if p.blocks[i].free && p.blocks[i].size > largest {
			largest = p.blocks[i].size
		}
	}
	return largest
}
