package format

// Alignment utilities for pool-resident records. Block sizes and offsets stay
// at machine-word granularity so every handle the pool returns is safe for
// any fixed-width field a caller lays out inside it.

const (
	// Quantum is the allocator's alignment quantum in bytes. Every block
	// payload size is rounded up to a multiple of this value.
	Quantum = 8

	// QuantumMask is Quantum - 1, for alignment arithmetic.
	QuantumMask = Quantum - 1
)

// Align returns n aligned up to the next Quantum boundary.
//
// Example:
//
//	Align(1)  = 8
//	Align(8)  = 8
//	Align(9)  = 16
//	Align(16) = 16
func Align(n int) int {
	return (n + QuantumMask) &^ QuantumMask
}

// Aligned reports whether n is already a multiple of the quantum.
func Aligned(n int) bool {
	return n&QuantumMask == 0
}
