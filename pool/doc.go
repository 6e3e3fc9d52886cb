// Package pool implements a first-fit, free-list memory allocator over a
// fixed-size arena obtained from the operating system.
//
// # Overview
//
// A Pool owns one contiguous byte arena for its lifetime between Init and
// Deinit. Allocation state lives entirely outside the arena, in an ordered
// table of block descriptors: user-visible memory carries no hidden headers,
// so the arena's observable contents are exactly what the caller wrote, and a
// buffer overrun in user code cannot corrupt allocator metadata.
//
// # Allocation policy
//
// Alloc rounds requests up to the 8-byte alignment quantum and scans the
// descriptor table in ascending offset order, taking the first free block
// large enough (first-fit). First-fit is a deliberate choice: it is simple,
// O(n) worst case, and favors reusing low-offset blocks, which concentrates
// fragmentation at high offsets over time. When the chosen block leaves a
// useful remainder (more than one quantum), the block is split and the
// remainder returned to the free list; otherwise the slack stays inside the
// block as internal fragmentation.
//
// Free merges the released block with its immediate neighbors. Because every
// path that creates a free block coalesces with both neighbors, no two
// adjacent free blocks ever persist, and a single forward merge plus a single
// backward merge per Free is always sufficient.
//
// Resize shrinks in place (the address never changes on shrink), grows in
// place by absorbing a directly-following free block when possible, and
// otherwise moves the block, copying min(old, new) bytes. A failed grow
// returns nil and leaves the original block untouched.
//
// # Handles
//
// Alloc returns a []byte aliasing the arena at the block's offset, with its
// capacity capped at the block end. The pool reconstructs the owning block
// from the slice's data pointer, so Free and Resize accept exactly the values
// Alloc returned. Zero-size allocations return a shared sentinel handle that
// owns no arena storage; Free and Resize accept it as a no-op input.
//
// # Failure semantics
//
//   - Exhaustion: Alloc and a growing Resize return nil; callers must check.
//   - Fatal setup failure: Init aborts the process when the OS cannot supply
//     the arena. There is no way to continue without one.
//   - Foreign, stale, or interior pointers passed to Free are ignored, as is
//     a double free. Ignoring a bad pointer is always safer than corrupting
//     the descriptor table over it.
//
// # Thread safety
//
// Every public operation is safe for concurrent use. A single mutex covers
// each operation end to end: splitting and coalescing touch neighboring
// descriptors, so correctness requires serializing the whole table anyway,
// and per-block locking would buy complexity, not throughput, at this scale.
// Effects are visible to all goroutines as soon as the lock is released.
//
// Set MEMKIT_LOG_ALLOC=1 to trace exhaustion and moved-resize events on
// stderr.
package pool
