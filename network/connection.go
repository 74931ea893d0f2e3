package network

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"asyncnet/internal/buffer"
	"asyncnet/internal/errors"
	"asyncnet/internal/executor"
	"asyncnet/util"
)

// Connection is one established TCP socket.
//
// Received bytes are appended to a private buffer by a read pump that
// runs as a chain of executor tasks, and are handed to the consumers
// queued with QueueConsumer in FIFO order.  Writes go through Accept,
// which holds a per-connection lock for the whole payload so concurrent
// writers never interleave.
//
// Closing is two-step.  The first Close ends the logical input side and
// releases the socket unless a write is in flight, in which case the
// writer releases it when it is done.  IsClosed reports whether the
// socket has been released.
type Connection struct {
	id         string
	manager    *Manager
	exec       *executor.Executor
	logger     *util.Logger
	conn       net.Conn
	target     net.IP
	targetPort int

	received *buffer.Buffer
	input    *buffer.Stream
	readBuf  *[]byte // owned by the read pump

	writeMu  sync.Mutex // held for the duration of one Accept
	writeBuf []byte

	closing  atomic.Bool // socket release requested
	released atomic.Bool
	done     chan struct{}
}

func newConnection(m *Manager, nc net.Conn, target net.IP, port int) *Connection {
	id := uuid.NewString()
	c := &Connection{
		id:         id,
		manager:    m,
		exec:       m.executor,
		logger:     m.logger.Child("conn:" + id[:8]),
		conn:       nc,
		target:     target,
		targetPort: port,
		received:   m.opts.Buffers.NewBuffer(),
		input:      m.opts.Buffers.NewStream(),
		readBuf:    util.GetBuf(m.opts.ReadBufferSize),
		writeBuf:   make([]byte, m.opts.WriteBufferSize),
		done:       make(chan struct{}),
	}
	c.logger.Debug("connection to %s established", c.RemoteAddr())
	return c
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string { return c.id }

// Target returns the remote IP address.
func (c *Connection) Target() net.IP { return c.target }

// TargetPort returns the remote port.
func (c *Connection) TargetPort() int { return c.targetPort }

// RemoteAddr returns the remote endpoint as host:port.
func (c *Connection) RemoteAddr() string {
	return net.JoinHostPort(c.target.String(), strconv.Itoa(c.targetPort))
}

// LocalAddr returns the local endpoint of the socket.
func (c *Connection) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// Done is closed once the socket has been released.
func (c *Connection) Done() <-chan struct{} { return c.done }

// IsClosed reports whether the socket has been released.
func (c *Connection) IsClosed() bool { return c.released.Load() }

// QueueConsumer appends consumer to the input queue.  Bytes that
// arrived before any consumer was waiting are offered to it right away.
func (c *Connection) QueueConsumer(consumer buffer.Consumer) {
	if consumer == nil {
		return
	}
	c.input.QueueConsumer(consumer)
	if c.received.Len() > 0 {
		c.submit(func() { c.drain(false) })
	}
}

// Accept writes every byte of src to the socket.  It blocks until the
// payload is written or the write fails; a failure force-closes the
// connection and is returned as an ErrUnsupportedOperation.  Accept on
// a released connection is a no-op.
func (c *Connection) Accept(src buffer.Source) error {
	_, err := c.write(src)
	return err
}

// Write implements io.Writer on top of Accept.
func (c *Connection) Write(p []byte) (int, error) {
	if c.IsClosed() {
		return 0, errors.Wrap("write", c.RemoteAddr(), errors.ErrClosed)
	}
	n, err := c.write(buffer.Bytes(p))
	if err == nil && n < len(p) {
		err = errors.Wrap("write", c.RemoteAddr(), errors.ErrClosed)
	}
	return n, err
}

// Close closes the connection.  The first call ends the input side and
// releases the socket, deferring to an in-flight write if there is one.
// Later calls only log.
func (c *Connection) Close() error {
	if c.input.IsClosed() {
		c.logger.Debug("connection closed")
		return nil
	}
	c.input.Close() //nolint:errcheck
	c.tryRelease()
	return nil
}

// CloseWrite shuts down the sending side of the socket once any write
// in flight has finished.  Received bytes keep flowing to consumers
// until the peer closes.
func (c *Connection) CloseWrite() error {
	c.writeMu.Lock()
	err := c.closeWriteLocked()
	c.writeMu.Unlock()

	if c.closing.Load() && !c.released.Load() {
		c.tryRelease()
	}
	return err
}

func (c *Connection) closeWriteLocked() error {
	if c.released.Load() {
		return nil
	}
	cw, ok := c.conn.(interface{ CloseWrite() error })
	if !ok {
		return errors.Unsupported("close write", c.RemoteAddr(), errors.New("half-close not supported"))
	}
	if err := cw.CloseWrite(); err != nil {
		return errors.Unsupported("close write", c.RemoteAddr(), err)
	}
	c.logger.Debug("write side closed")
	return nil
}

// ── Write path ───────────────────────────────────────────────────────

func (c *Connection) write(src buffer.Source) (int, error) {
	if c.IsClosed() {
		return 0, nil
	}

	c.writeMu.Lock()
	n, err := c.writeLocked(src)
	if c.closing.Load() {
		c.release()
	}
	c.writeMu.Unlock()

	// A Close racing with the unlock above may have found the lock
	// still held.
	if c.closing.Load() && !c.released.Load() {
		c.tryRelease()
	}
	return n, err
}

// writeLocked copies src through the scratch buffer one chunk at a
// time.  Full chunks go out first, then the remainder.
func (c *Connection) writeLocked(src buffer.Source) (int, error) {
	if c.released.Load() {
		return 0, nil
	}
	total := src.Len()
	chunk := len(c.writeBuf)
	off := 0

	for total-off >= chunk {
		n := src.CopyAt(off, c.writeBuf)
		if n == 0 {
			return off, nil
		}
		if err := c.writeFull(c.writeBuf[:n]); err != nil {
			return off, c.writeFailed(err)
		}
		off += n
	}
	if rest := total - off; rest > 0 {
		n := src.CopyAt(off, c.writeBuf[:rest])
		if err := c.writeFull(c.writeBuf[:n]); err != nil {
			return off, c.writeFailed(err)
		}
		off += n
	}
	return off, nil
}

func (c *Connection) writeFull(p []byte) error {
	for len(p) > 0 {
		n, err := c.conn.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// writeFailed force-closes the connection; the socket is released by
// the caller while it still holds the write lock.
func (c *Connection) writeFailed(err error) error {
	c.logger.Verbose("write failed: %v", err)
	c.input.Close() //nolint:errcheck
	c.closing.Store(true)
	return errors.Unsupported("write", c.RemoteAddr(), err)
}

// ── Release ──────────────────────────────────────────────────────────

// tryRelease marks the socket for release and closes it now unless a
// writer holds the lock.
func (c *Connection) tryRelease() {
	c.closing.Store(true)
	if !c.writeMu.TryLock() {
		return
	}
	c.release()
	c.writeMu.Unlock()
}

// release closes the OS socket.  The write lock must be held.
func (c *Connection) release() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	if err := c.conn.Close(); err != nil && !errors.IsClosedConn(err) {
		c.logger.Verbose("socket close: %v", err)
	}
	close(c.done)
	c.logger.Debug("socket released")
}

// ── Read pump ────────────────────────────────────────────────────────

// start issues the first read.
func (c *Connection) start() {
	if !c.submit(c.readOnce) {
		c.stopReading()
	}
}

// readOnce performs one blocking read and schedules the next.
func (c *Connection) readOnce() {
	if c.released.Load() {
		c.stopReading()
		return
	}

	buf := *c.readBuf
	n, err := c.conn.Read(buf)
	if n > 0 {
		c.received.Append(buf[:n])
	}

	switch {
	case err == io.EOF:
		c.logger.Debug("peer closed the connection")
		c.stopReading()
		return
	case err != nil:
		if errors.IsClosedConn(err) || c.released.Load() {
			c.logger.Debug("read stopped: socket released")
		} else {
			c.logger.Error("failed to read: %v", err)
		}
		c.stopReading()
		return
	}

	if c.input.IsClosed() {
		c.stopReading()
		return
	}

	c.consume()
	if !c.submit(c.readOnce) {
		c.stopReading()
	}
}

// stopReading ends the pump: the input side is closed, whatever is
// still buffered is drained, and the socket is released afterwards so
// consumers may still reply during the final drain.
func (c *Connection) stopReading() {
	c.input.Close() //nolint:errcheck
	if c.readBuf != nil {
		util.PutBuf(c.readBuf)
		c.readBuf = nil
	}
	c.drain(true)
}

// drain runs consumption rounds until the consumers stop making
// progress.  With release set, the socket is released afterwards.
func (c *Connection) drain(release bool) {
	before, consumers := c.received.Len(), c.input.ConsumerCount()
	c.consume()

	progressed := c.received.Len() < before || c.input.ConsumerCount() < consumers
	if progressed && c.received.Len() > 0 && c.input.ConsumerCount() > 0 {
		if c.submit(func() { c.drain(release) }) {
			return
		}
	}
	if release {
		c.tryRelease()
	}
}

// consume runs consumption rounds.  A failing consumer is dropped by
// the stream, so the next one gets its turn straight away.
func (c *Connection) consume() {
	for {
		err := c.input.Consume(c.received)
		if err == nil {
			return
		}
		c.logger.Error("consumer failed: %v", err)
	}
}

// submit hands task to the executor, reporting whether it was accepted.
func (c *Connection) submit(task executor.Task) bool {
	if err := c.exec.Submit(task); err != nil {
		c.logger.Debug("task dropped: %v", err)
		return false
	}
	return true
}

func (c *Connection) String() string {
	return fmt.Sprintf("conn %s %s", c.id[:8], c.RemoteAddr())
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(r)
}
