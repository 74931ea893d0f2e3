package buffer

import "io"

// Reader is the cursor a consumer receives.  It covers the bytes that
// were buffered when the consumer was invoked; whatever the consumer
// reads through it is drained from the buffer once the consumer
// returns.  Slices returned by Peek and Next are only valid until then.
type Reader struct {
	data []byte
	pos  int
}

// NewReader returns a Reader over p.  Mostly useful in tests.
func NewReader(p []byte) *Reader { return &Reader{data: p} }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.data) - r.pos }

// Consumed returns how many bytes have been read so far.
func (r *Reader) Consumed() int { return r.pos }

// Peek returns up to n unread bytes without consuming them.
func (r *Reader) Peek(n int) []byte {
	if n > r.Len() {
		n = r.Len()
	}
	return r.data[r.pos : r.pos+n]
}

// Next consumes and returns up to n bytes.
func (r *Reader) Next(n int) []byte {
	p := r.Peek(n)
	r.pos += len(p)
	return p
}

// Rest consumes and returns every unread byte.
func (r *Reader) Rest() []byte { return r.Next(r.Len()) }

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if r.Len() == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// ReadByte implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	if r.Len() == 0 {
		return 0, io.EOF
	}
	c := r.data[r.pos]
	r.pos++
	return c, nil
}

// IndexByte returns the offset of c among the unread bytes, or -1.
func (r *Reader) IndexByte(c byte) int {
	for i, b := range r.data[r.pos:] {
		if b == c {
			return i
		}
	}
	return -1
}
