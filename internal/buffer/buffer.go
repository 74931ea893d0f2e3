// Package buffer provides the byte plumbing shared by the transport: an
// append-only receive buffer, a pull-based reader cursor over it, and a
// Stream that hands buffered bytes to a queue of consumers.
//
// Buffers only ever grow at the tail and shrink at the head, so a view
// taken under the lock stays valid after the lock is released even
// while a read pump keeps appending.
package buffer

import "sync"

// Source is anything the write path can copy bytes out of.
type Source interface {
	// Len returns the number of bytes available.
	Len() int
	// CopyAt copies bytes starting at off into dst and returns the
	// number copied.
	CopyAt(off int, dst []byte) int
}

// Bytes adapts a plain slice to Source.
type Bytes []byte

func (b Bytes) Len() int { return len(b) }

func (b Bytes) CopyAt(off int, dst []byte) int {
	if off >= len(b) {
		return 0
	}
	return copy(dst, b[off:])
}

// Buffer is an append-only byte buffer drained from the front.  It is
// safe for one appender racing any number of readers.
type Buffer struct {
	mu   sync.Mutex
	data []byte
}

// New returns an empty Buffer with the given initial capacity.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{data: make([]byte, 0, capacity)}
}

// Append copies p to the tail of the buffer.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	b.data = append(b.data, p...)
	b.mu.Unlock()
}

// Len returns the number of undrained bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// CopyAt copies undrained bytes starting at off into dst.
func (b *Buffer) CopyAt(off int, dst []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if off >= len(b.data) {
		return 0
	}
	return copy(dst, b.data[off:])
}

// Bytes returns a copy of every undrained byte.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// view returns the current contents without copying.  The returned
// slice is never written to again by the buffer.
func (b *Buffer) view() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data[:len(b.data):len(b.data)]
}

// discard drops n bytes from the head.
func (b *Buffer) discard(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if n >= len(b.data) {
		// Keep only the spare capacity past the tail; bytes handed out
		// by view are never overwritten.
		b.data = b.data[len(b.data):]
		return
	}
	b.data = b.data[n:]
}
