// Package network is the asynchronous TCP transport: a Manager owns the
// worker pool and the per-port Servers, Servers accept Connections, and
// Connections pump received bytes into caller-registered consumers while
// serializing outbound writes.
//
// Every blocking socket call runs as a task on the Manager's executor
// and resubmits its own continuation, so no goroutine is tied to a
// socket for longer than one operation.
package network

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"asyncnet/config"
	"asyncnet/internal/buffer"
	"asyncnet/internal/errors"
	"asyncnet/internal/executor"
	"asyncnet/util"
)

// Options configures a Manager.  Zero values fall back to the defaults
// in package config.
type Options struct {
	BindAddress       string
	ReadBufferSize    int
	WriteBufferSize   int
	Buffers           buffer.Factory
	WorkerIdleTimeout time.Duration
	DialTimeout       time.Duration
	KeepAlive         time.Duration
	ReusePort         bool
	Logger            *util.Logger
}

// OptionsFromConfig maps the transport section of cfg onto Options.
func OptionsFromConfig(cfg *config.Config, logger *util.Logger) Options {
	return Options{
		BindAddress:       cfg.BindAddress,
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		Buffers:           buffer.Factory{Capacity: cfg.ReceiveBufferCapacity},
		WorkerIdleTimeout: cfg.WorkerIdleTimeout,
		DialTimeout:       cfg.Timeout,
		KeepAlive:         cfg.KeepAlive,
		ReusePort:         cfg.ReusePort,
		Logger:            logger,
	}
}

func (o *Options) setDefaults() {
	if o.BindAddress == "" {
		o.BindAddress = config.DefaultBindAddress
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = config.DefaultBufferSize
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = config.DefaultBufferSize
	}
	if o.Buffers.Capacity <= 0 {
		o.Buffers.Capacity = config.DefaultBufferSize
	}
	if o.WorkerIdleTimeout <= 0 {
		o.WorkerIdleTimeout = config.DefaultWorkerIdleTimeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = config.DefaultConnTimeout
	}
	if o.Logger == nil {
		o.Logger = util.NewLogger(0)
	}
}

// Manager owns the worker pool shared by all of its servers and
// connections, and the registry of servers by port.
type Manager struct {
	opts     Options
	logger   *util.Logger
	executor *executor.Executor

	ctx    context.Context // cancelled by Close; bounds outbound dials
	cancel context.CancelFunc

	mu      sync.Mutex // guards servers and closed
	servers map[int]*Server
	closed  bool

	openServers atomic.Int64
}

// New creates a Manager.  The worker pool starts empty and grows on
// demand.
func New(opts Options) *Manager {
	opts.setDefaults()
	m := &Manager{
		opts:    opts,
		logger:  opts.Logger.Child("network"),
		servers: make(map[int]*Server),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.executor = executor.New(executor.Options{
		Name:        "network",
		IdleTimeout: opts.WorkerIdleTimeout,
		KeepAlive:   func() bool { return m.openServers.Load() > 0 },
		Logger:      m.logger,
	})
	return m
}

// Executor returns the pool every socket task runs on.
func (m *Manager) Executor() *executor.Executor { return m.executor }

// Buffers returns the factory used for receive buffers and streams.
func (m *Manager) Buffers() buffer.Factory { return m.opts.Buffers }

// Logger returns the manager's "network" logger.
func (m *Manager) Logger() *util.Logger { return m.logger }

// OpenServers returns the number of servers currently accepting.
func (m *Manager) OpenServers() int64 { return m.openServers.Load() }

// GetServer returns the Server bound to port, binding a new listening
// socket on the configured address the first time a port is requested.
// Port 0 binds an ephemeral port; the server is registered under the
// port the OS picked.  The returned server is not yet accepting.
func (m *Manager) GetServer(port int) (*Server, error) {
	addr := util.FormatAddr(m.opts.BindAddress, port)
	if port < config.MinPort || port > config.MaxPort {
		return nil, errors.InvalidArgument("listen", addr, errors.New("port out of range"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.InvalidArgument("listen", addr, errors.ErrClosed)
	}
	if s, ok := m.servers[port]; ok && port != 0 {
		return s, nil
	}

	lc := net.ListenConfig{
		Control:   listenControl(m.opts.ReusePort),
		KeepAlive: m.opts.KeepAlive,
	}
	ln, err := lc.Listen(m.ctx, "tcp", addr)
	if err != nil {
		return nil, errors.InvalidArgument("listen", addr, err)
	}

	bound := ln.Addr().(*net.TCPAddr).Port
	s := newServer(m, ln, bound)
	m.servers[bound] = s
	m.logger.Verbose("bound %s", ln.Addr())
	return s, nil
}

// CreateConnection dials target:port without blocking the caller.
// Exactly one of onConnected or onFailure is invoked, once, from a pool
// worker.  If the dial cannot even be scheduled (bad arguments, manager
// closed) onFailure runs synchronously before CreateConnection returns.
func (m *Manager) CreateConnection(target net.IP, port int, onConnected func(*Connection), onFailure func(error)) {
	if onConnected == nil {
		onConnected = func(*Connection) {}
	}
	if onFailure == nil {
		onFailure = func(error) {}
	}

	if target == nil {
		onFailure(errors.InvalidArgument("dial", "", errors.New("no target address")))
		return
	}
	addr := util.FormatAddr(target.String(), port)
	if port < config.MinPort || port > config.MaxPort {
		onFailure(errors.InvalidArgument("dial", addr, errors.New("port out of range")))
		return
	}

	err := m.executor.Submit(func() {
		d := net.Dialer{Timeout: m.opts.DialTimeout, KeepAlive: m.opts.KeepAlive}
		nc, err := d.DialContext(m.ctx, "tcp", addr)
		if err != nil {
			onFailure(errors.Wrap("dial", addr, err))
			return
		}
		c := m.newConnection(nc, target, port)
		m.logger.Debug("connected to %s", addr)

		if perr := deliver(onConnected, c); perr != nil {
			m.logger.Error("connect callback for %s failed: %v", addr, perr)
			c.Close() //nolint:errcheck
			onFailure(perr)
			return
		}
		c.start()
	})
	if err != nil {
		onFailure(errors.Wrap("dial", addr, err))
	}
}

// deliver invokes onConnected, turning a panic into an error.
func deliver(onConnected func(*Connection), c *Connection) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Unsupported("connect", c.RemoteAddr(), errors.New(panicMessage(r)))
		}
	}()
	onConnected(c)
	return nil
}

// Close stops every registered server and the worker pool.  Live
// connections are not drained; they end when their peers hang up.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	servers := make([]*Server, 0, len(m.servers))
	for _, s := range m.servers {
		servers = append(servers, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range servers {
		if err := s.SetOpen(false); err != nil {
			errs = append(errs, err)
		}
	}
	m.cancel()
	m.executor.Close()
	m.logger.Verbose("network manager closed")
	return errors.Join(errs...)
}

// newConnection wraps an established socket.  The read pump is not
// started; callers run their callbacks first so consumers they queue
// see the very first bytes.
func (m *Manager) newConnection(nc net.Conn, target net.IP, port int) *Connection {
	return newConnection(m, nc, target, port)
}

// remoteOf resolves the peer address of an accepted socket.
func remoteOf(nc net.Conn) (net.IP, int, error) {
	ta, ok := nc.RemoteAddr().(*net.TCPAddr)
	if !ok || ta == nil {
		return nil, 0, errors.Wrap("accept", nc.LocalAddr().String(),
			errors.New("remote address is not TCP"))
	}
	return ta.IP, ta.Port, nil
}
