package buffer

import (
	"fmt"
	"sync"

	"github.com/eapache/queue"
)

// Consumer is offered buffered bytes through a Reader and reads as many
// as it can handle.  It returns true once it is finished, which removes
// it from the queue; returning false keeps it at the head waiting for
// more bytes.
type Consumer interface {
	Consume(r *Reader) (done bool)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(r *Reader) bool

func (f ConsumerFunc) Consume(r *Reader) bool { return f(r) }

// Stream is the input side of a connection: a FIFO of consumers fed
// from a Buffer.  Closing a Stream only marks the logical input side
// closed; queued consumers keep receiving whatever is still buffered.
type Stream struct {
	mu     sync.Mutex // guards consumers and closed
	run    sync.Mutex // one consumption round at a time
	queue  *queue.Queue
	closed bool
}

// NewStream returns an open Stream with no consumers.
func NewStream() *Stream {
	return &Stream{queue: queue.New()}
}

// QueueConsumer appends c to the consumer queue.
func (s *Stream) QueueConsumer(c Consumer) {
	if c == nil {
		return
	}
	s.mu.Lock()
	s.queue.Add(c)
	s.mu.Unlock()
}

// ConsumerCount returns the number of queued consumers.
func (s *Stream) ConsumerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Length()
}

// Close marks the input side closed.  It is idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// IsClosed reports whether Close has been called.
func (s *Stream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Consume runs one consumption round: the head consumer is offered the
// buffered bytes until it either finishes (and the next one takes
// over), stops making progress, or the buffer is empty.  A panicking
// consumer is dropped from the queue and reported as an error.
func (s *Stream) Consume(buf *Buffer) (err error) {
	s.run.Lock()
	defer s.run.Unlock()

	for {
		data := buf.view()
		if len(data) == 0 {
			return nil
		}
		head := s.head()
		if head == nil {
			return nil
		}

		r := &Reader{data: data}
		done, perr := invoke(head, r)
		buf.discard(r.pos)
		if perr != nil {
			s.pop()
			return perr
		}
		if done {
			s.pop()
			continue
		}
		if r.pos == 0 {
			// Head wants more bytes than are buffered.
			return nil
		}
	}
}

func (s *Stream) head() Consumer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Length() == 0 {
		return nil
	}
	return s.queue.Peek().(Consumer)
}

func (s *Stream) pop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Length() > 0 {
		s.queue.Remove()
	}
}

func invoke(c Consumer, r *Reader) (done bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("consumer panicked: %v", rec)
		}
	}()
	return c.Consume(r), nil
}

// Factory produces the buffers and streams a connection needs.
type Factory struct {
	// Capacity is the initial capacity of receive buffers.
	Capacity int
}

// NewBuffer returns an empty receive buffer.
func (f Factory) NewBuffer() *Buffer { return New(f.Capacity) }

// NewStream returns an open consumer stream.
func (f Factory) NewStream() *Stream { return NewStream() }
