package pool

// Stats holds allocator counters. Byte totals count block bytes, which
// include alignment slack, so BytesAllocated - BytesFreed equals the live
// block bytes at any quiescent point.
type Stats struct {
	AllocCalls   int // Total Alloc calls (including the moves Resize performs)
	FreeCalls    int // Total Free calls
	ResizeCalls  int // Total Resize calls (nil and zero-size handles route to Alloc/Free)
	FailedAllocs int // Allocations that returned nil

	Splits           int // Block splits (alloc and shrink)
	CoalesceForward  int // Merges with the following block
	CoalesceBackward int // Merges with the preceding block

	InPlaceShrinks int // Resizes satisfied without moving, size reduced
	InPlaceGrows   int // Resizes grown by absorbing the next free block
	MovedResizes   int // Resizes that allocated, copied and freed

	BytesAllocated int64 // Block bytes handed out
	BytesFreed     int64 // Block bytes returned
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// BlockInfo is a copy of one block descriptor, exposed for inspection. The
// descriptor table is the allocator's only metadata, so a snapshot is enough
// to verify the partition invariant without touching arena contents.
type BlockInfo struct {
	Offset int
	Size   int
	Free   bool
}

// Blocks returns a copy of the descriptor table in ascending offset order.
func (p *Pool) Blocks() []BlockInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]BlockInfo, len(p.blocks))
	for i, b := range p.blocks {
		out[i] = BlockInfo{Offset: b.off, Size: b.size, Free: b.free}
	}
	return out
}

// FreeBytes returns the sum of all free block sizes.
func (p *Pool) FreeBytes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freeBytesLocked()
}

// LargestFree returns the size of the largest free block, 0 when none.
func (p *Pool) LargestFree() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.largestFreeLocked()
}
