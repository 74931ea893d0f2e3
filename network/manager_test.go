package network

import (
	"bytes"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"asyncnet/internal/buffer"
	"asyncnet/internal/errors"
	"asyncnet/util"
)

var loopback = net.IPv4(127, 0, 0, 1)

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.WorkerIdleTimeout == 0 {
		opts.WorkerIdleTimeout = time.Second
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 2 * time.Second
	}
	m := New(opts)
	t.Cleanup(func() { m.Close() })
	return m
}

// lockedBuffer is a log sink shared by loggers on several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// collector is a consumer that keeps everything it is offered.
type collector struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *collector) Consume(r *buffer.Reader) bool {
	c.mu.Lock()
	c.buf.Write(r.Rest())
	c.mu.Unlock()
	return false
}

func (c *collector) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.buf.Bytes())
}

func (c *collector) eventually(t *testing.T, want []byte) {
	t.Helper()
	require.Eventually(t, func() bool { return bytes.Equal(c.Bytes(), want) },
		3*time.Second, 10*time.Millisecond, "got %q", c.Bytes())
}

func TestGetServer_InvalidPort(t *testing.T) {
	m := newTestManager(t, Options{})

	for _, port := range []int{70000, -1, 65536} {
		s, err := m.GetServer(port)
		require.Nil(t, s)
		require.ErrorIs(t, err, errors.ErrInvalidArgument, "port %d", port)
	}
}

func TestGetServer_SameInstancePerPort(t *testing.T) {
	m := newTestManager(t, Options{})
	port, err := util.FindFreePort()
	require.NoError(t, err)

	s1, err := m.GetServer(port)
	require.NoError(t, err)
	s2, err := m.GetServer(port)
	require.NoError(t, err)

	require.Same(t, s1, s2)
	require.Equal(t, port, s1.Port())
	require.False(t, s1.IsOpen())
}

func TestGetServer_EphemeralPort(t *testing.T) {
	m := newTestManager(t, Options{})

	s1, err := m.GetServer(0)
	require.NoError(t, err)
	s2, err := m.GetServer(0)
	require.NoError(t, err)

	require.NotSame(t, s1, s2)
	require.NotZero(t, s1.Port())
	require.NotEqual(t, s1.Port(), s2.Port())

	again, err := m.GetServer(s1.Port())
	require.NoError(t, err)
	require.Same(t, s1, again)
}

func TestGetServer_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	m := newTestManager(t, Options{})
	_, err = m.GetServer(ln.Addr().(*net.TCPAddr).Port)
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestCreateConnection_RoundTrip(t *testing.T) {
	m := newTestManager(t, Options{})
	s, err := m.GetServer(0)
	require.NoError(t, err)
	s.AddConnectCallback(ConnectFunc(echo))
	require.NoError(t, s.SetOpen(true))

	var connected, failed atomic.Int32
	conns := make(chan *Connection, 1)
	m.CreateConnection(loopback, s.Port(),
		func(c *Connection) {
			connected.Add(1)
			conns <- c
		},
		func(error) { failed.Add(1) })

	var c *Connection
	select {
	case c = <-conns:
	case <-time.After(3 * time.Second):
		t.Fatal("connect callback never ran")
	}
	require.True(t, c.Target().Equal(loopback))
	require.Equal(t, s.Port(), c.TargetPort())

	col := &collector{}
	c.QueueConsumer(col)
	require.NoError(t, c.Accept(buffer.Bytes("hello")))
	col.eventually(t, []byte("hello"))

	require.Equal(t, int32(1), connected.Load())
	require.Equal(t, int32(0), failed.Load())
}

func TestCreateConnection_Refused(t *testing.T) {
	m := newTestManager(t, Options{})
	port, err := util.FindFreePort()
	require.NoError(t, err)

	var connected atomic.Int32
	failures := make(chan error, 2)
	m.CreateConnection(loopback, port,
		func(*Connection) { connected.Add(1) },
		func(err error) { failures <- err })

	select {
	case err := <-failures:
		require.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("failure callback never ran")
	}
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, failures)
	require.Equal(t, int32(0), connected.Load())
}

func TestCreateConnection_InvalidPortFailsSynchronously(t *testing.T) {
	m := newTestManager(t, Options{})

	var got error
	m.CreateConnection(loopback, 70000,
		func(*Connection) { t.Error("unexpected connection") },
		func(err error) { got = err })
	require.ErrorIs(t, got, errors.ErrInvalidArgument)

	got = nil
	m.CreateConnection(nil, 80,
		func(*Connection) { t.Error("unexpected connection") },
		func(err error) { got = err })
	require.ErrorIs(t, got, errors.ErrInvalidArgument)
}

func TestCreateConnection_CallbackPanicReportedAsFailure(t *testing.T) {
	m := newTestManager(t, Options{})
	s, err := m.GetServer(0)
	require.NoError(t, err)
	require.NoError(t, s.SetOpen(true))

	failures := make(chan error, 1)
	m.CreateConnection(loopback, s.Port(),
		func(*Connection) { panic("callback bug") },
		func(err error) { failures <- err })

	select {
	case err := <-failures:
		require.ErrorContains(t, err, "callback bug")
	case <-time.After(3 * time.Second):
		t.Fatal("failure callback never ran")
	}
}

func TestManager_CloseStopsServers(t *testing.T) {
	m := New(Options{WorkerIdleTimeout: 20 * time.Millisecond})

	s1, err := m.GetServer(0)
	require.NoError(t, err)
	s2, err := m.GetServer(0)
	require.NoError(t, err)
	require.NoError(t, s1.SetOpen(true))
	require.NoError(t, s2.SetOpen(true))
	require.Equal(t, int64(2), m.OpenServers())

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	require.Equal(t, int64(0), m.OpenServers())
	require.False(t, s1.IsOpen())

	_, err = m.GetServer(0)
	require.ErrorIs(t, err, errors.ErrInvalidArgument)

	require.Eventually(t, func() bool { return m.Executor().NumWorkers() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestManager_PoolDrainsOnceServersClose(t *testing.T) {
	m := newTestManager(t, Options{WorkerIdleTimeout: 20 * time.Millisecond})

	s, err := m.GetServer(0)
	require.NoError(t, err)
	require.NoError(t, s.SetOpen(true))

	// The pending accept holds a worker for as long as the server is open.
	time.Sleep(100 * time.Millisecond)
	require.GreaterOrEqual(t, m.Executor().NumWorkers(), 1)

	require.NoError(t, s.SetOpen(false))
	require.Eventually(t, func() bool { return m.Executor().NumWorkers() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestManager_LogsThroughChildLoggers(t *testing.T) {
	var out lockedBuffer
	logger := util.NewLogger(3)
	logger.SetOutput(&out)
	logger.SetTimestamps(false)

	m := newTestManager(t, Options{Logger: logger})
	s, err := m.GetServer(0)
	require.NoError(t, err)
	require.NoError(t, s.SetOpen(true))

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("waiting for a connection"))
	}, 2*time.Second, 10*time.Millisecond)
	require.Contains(t, out.String(), "network.server:")
	require.Contains(t, out.String(), "opening server on port")
}
