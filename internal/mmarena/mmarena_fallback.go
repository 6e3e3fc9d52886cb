//go:build !unix

// Package mmarena provides platform-specific helpers for reserving the
// allocator's backing arena from the operating system.
package mmarena

// Map allocates the arena from the Go heap when anonymous mappings are not
// available.
func Map(n int) ([]byte, func() error, error) {
	return make([]byte, n), func() error { return nil }, nil
}
