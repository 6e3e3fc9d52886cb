// Package format holds the alignment quantum and the little-endian field
// helpers shared by the pool allocator and the record types stored in pool
// blocks.
package format

import "encoding/binary"

// Ref is an arena offset used as a link between records stored in pool
// blocks. Records reference each other by offset rather than by machine
// pointer, so a record graph can be inspected or relocated as raw bytes.
type Ref = uint32

// InvalidRef marks the absence of a linked record.
const InvalidRef Ref = 0xFFFFFFFF

// ReadU16 reads a little-endian uint16 at off.
func ReadU16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off:])
}

// PutU16 writes a little-endian uint16 at off.
func PutU16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:], v)
}

// ReadU32 reads a little-endian uint32 at off.
func ReadU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}

// PutU32 writes a little-endian uint32 at off.
func PutU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:], v)
}
