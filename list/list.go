// Package list implements a singly linked list whose nodes live in blocks of
// a pool.Pool and reference each other by arena offset rather than by machine
// pointer. The list performs no arena manipulation of its own: every node
// comes from Alloc and goes back through Free.
package list

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/pool"
)

// Node record layout inside a pool block (little-endian):
//
//	Offset  Size  Field
//	0x00    2     value
//	0x02    2     (padding)
//	0x04    4     next ref, InvalidRef for the tail
const (
	nodeSize        = 8
	nodeValueOffset = 0
	nodeNextOffset  = 4
)

var (
	// ErrOutOfMemory is returned when the backing pool cannot supply a node.
	ErrOutOfMemory = errors.New("list: pool exhausted")

	// ErrNotFound is returned when a value or anchor node is not in the list.
	ErrNotFound = errors.New("list: not found")
)

// Node is a handle to one list node. The zero Node is invalid; valid nodes
// come from Search or from walking the list. A Node stays valid until the
// node is deleted or the list is cleaned up.
type Node struct {
	ref format.Ref
	buf []byte
}

// Value returns the node's stored value.
func (n Node) Value() uint16 {
	return format.ReadU16(n.buf, nodeValueOffset)
}

func (n Node) valid() bool {
	return n.buf != nil
}

func (n Node) next() format.Ref {
	return format.ReadU32(n.buf, nodeNextOffset)
}

func (n Node) setNext(r format.Ref) {
	format.PutU32(n.buf, nodeNextOffset, r)
}

// List is a singly linked list backed by a pool. Operations are safe for
// concurrent use; one mutex serializes the whole list, independent of the
// pool's own lock.
type List struct {
	mu   sync.Mutex
	pool *pool.Pool
	head format.Ref
}

// New returns an empty list backed by p. The pool is owned by the caller:
// Cleanup releases the list's nodes but never deinitializes the pool.
func New(p *pool.Pool) *List {
	return &List{pool: p, head: format.InvalidRef}
}

// load resolves a ref to a node handle.
func (l *List) load(ref format.Ref) (Node, bool) {
	if ref == format.InvalidRef {
		return Node{}, false
	}
	buf, ok := l.pool.At(int(ref))
	if !ok || len(buf) < nodeSize {
		return Node{}, false
	}
	return Node{ref: ref, buf: buf}, true
}

// newNode allocates and initializes a detached node.
func (l *List) newNode(v uint16) (Node, error) {
	buf := l.pool.Alloc(nodeSize)
	if buf == nil {
		return Node{}, ErrOutOfMemory
	}
	off, _ := l.pool.OffsetOf(buf)
	n := Node{ref: format.Ref(off), buf: buf}
	format.PutU16(buf, nodeValueOffset, v)
	n.setNext(format.InvalidRef)
	return n, nil
}

// Insert appends a new node holding v at the tail of the list.
func (l *List) Insert(v uint16) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.newNode(v)
	if err != nil {
		return err
	}

	if l.head == format.InvalidRef {
		l.head = n.ref
		return nil
	}

	tail, ok := l.load(l.head)
	for ok && tail.next() != format.InvalidRef {
		tail, ok = l.load(tail.next())
	}
	if !ok {
		// Broken chain; reattach at head rather than lose the node.
		n.setNext(l.head)
		l.head = n.ref
		return nil
	}
	tail.setNext(n.ref)
	return nil
}

// InsertAfter inserts a new node holding v directly after prev.
func (l *List) InsertAfter(prev Node, v uint16) error {
	if !prev.valid() {
		return ErrNotFound
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.newNode(v)
	if err != nil {
		return err
	}
	n.setNext(prev.next())
	prev.setNext(n.ref)
	return nil
}

// InsertBefore inserts a new node holding v directly before next. When next
// is not reachable from the head, the freshly allocated node is released and
// ErrNotFound is returned.
func (l *List) InsertBefore(next Node, v uint16) error {
	if !next.valid() {
		return ErrNotFound
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.newNode(v)
	if err != nil {
		return err
	}

	if l.head == next.ref {
		n.setNext(l.head)
		l.head = n.ref
		return nil
	}

	prev, ok := l.load(l.head)
	for ok && prev.next() != next.ref {
		prev, ok = l.load(prev.next())
	}
	if !ok {
		l.pool.Free(n.buf)
		return ErrNotFound
	}
	n.setNext(next.ref)
	prev.setNext(n.ref)
	return nil
}

// Delete removes the first node holding v and returns its block to the pool.
func (l *List) Delete(v uint16) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var prev Node
	cur, ok := l.load(l.head)
	for ok {
		if cur.Value() == v {
			if prev.valid() {
				prev.setNext(cur.next())
			} else {
				l.head = cur.next()
			}
			l.pool.Free(cur.buf)
			return nil
		}
		prev = cur
		cur, ok = l.load(cur.next())
	}
	return ErrNotFound
}

// Search returns a handle to the first node holding v.
func (l *List) Search(v uint16) (Node, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.load(l.head)
	for ok {
		if cur.Value() == v {
			return cur, true
		}
		cur, ok = l.load(cur.next())
	}
	return Node{}, false
}

// Count returns the number of nodes in the list.
func (l *List) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	cur, ok := l.load(l.head)
	for ok {
		count++
		cur, ok = l.load(cur.next())
	}
	return count
}

// String renders the whole list as "[v1, v2, v3]".
func (l *List) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.render(Node{}, Node{})
}

// Range renders the nodes from start through end inclusive. A zero start
// begins at the head; a zero end runs to the tail.
func (l *List) Range(start, end Node) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.render(start, end)
}

// render walks the list under the lock and formats the selected span.
func (l *List) render(start, end Node) string {
	var sb strings.Builder
	sb.WriteByte('[')

	printing := !start.valid()
	first := true
	cur, ok := l.load(l.head)
	for ok {
		if !printing && cur.ref == start.ref {
			printing = true
		}
		if printing {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.FormatUint(uint64(cur.Value()), 10))
			first = false
		}
		if end.valid() && cur.ref == end.ref {
			break
		}
		cur, ok = l.load(cur.next())
	}

	sb.WriteByte(']')
	return sb.String()
}

// Cleanup frees every node and empties the list. The backing pool itself is
// left initialized for reuse.
func (l *List) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.load(l.head)
	for ok {
		next := cur.next()
		l.pool.Free(cur.buf)
		cur, ok = l.load(next)
	}
	l.head = format.InvalidRef
}
