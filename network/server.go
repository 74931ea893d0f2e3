package network

import (
	"net"
	"reflect"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"asyncnet/internal/errors"
	"asyncnet/util"
)

// ConnectHandler is notified of every connection a Server accepts.
type ConnectHandler interface {
	HandleConnection(c *Connection)
}

// ConnectFunc adapts a function to ConnectHandler.
type ConnectFunc func(c *Connection)

func (f ConnectFunc) HandleConnection(c *Connection) { f(c) }

type registration struct {
	id      string
	handler ConnectHandler
}

// Server is a listening socket on one port.  It is created bound but
// idle; SetOpen(true) starts the accept loop.  Once SetOpen(false) has
// closed the listener the Server cannot be reopened.
type Server struct {
	manager *Manager
	logger  *util.Logger
	ln      net.Listener
	port    int
	addr    string

	mu        sync.Mutex // guards open, accepting and lnClosed
	open      bool
	accepting bool // an accept task is pending or running
	lnClosed  bool

	callbacksMu sync.Mutex
	callbacks   []registration
}

func newServer(m *Manager, ln net.Listener, port int) *Server {
	return &Server{
		manager: m,
		logger:  m.logger.Child("server:" + strconv.Itoa(port)),
		ln:      ln,
		port:    port,
		addr:    ln.Addr().String(),
	}
}

// Port returns the port the server is bound to.
func (s *Server) Port() int { return s.port }

// Addr returns the listening address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// IsOpen reports whether the server is accepting connections.
func (s *Server) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// AddConnectCallback registers h to be called for every accepted
// connection, in registration order, and returns an id for
// RemoveConnectCallback.  Registering the same comparable handler twice
// returns the existing id.  Callbacks run on the accept task, so a slow
// callback delays the next accept.
func (s *Server) AddConnectCallback(h ConnectHandler) string {
	if h == nil {
		return ""
	}
	s.callbacksMu.Lock()
	defer s.callbacksMu.Unlock()

	if reflect.TypeOf(h).Comparable() {
		for _, r := range s.callbacks {
			if r.handler == h {
				return r.id
			}
		}
	}
	id := uuid.NewString()
	s.callbacks = append(s.callbacks, registration{id: id, handler: h})
	return id
}

// RemoveConnectCallback unregisters the callback with the given id.
func (s *Server) RemoveConnectCallback(id string) bool {
	s.callbacksMu.Lock()
	defer s.callbacksMu.Unlock()
	for i, r := range s.callbacks {
		if r.id == id {
			s.callbacks = append(s.callbacks[:i:i], s.callbacks[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Server) snapshot() []registration {
	s.callbacksMu.Lock()
	defer s.callbacksMu.Unlock()
	out := make([]registration, len(s.callbacks))
	copy(out, s.callbacks)
	return out
}

// SetOpen starts or stops accepting.  Opening an already open server is
// a no-op.  Closing releases the listening socket for good; later
// attempts to open fail with ErrUnsupportedOperation.
func (s *Server) SetOpen(open bool) error {
	if open {
		return s.openServer()
	}
	return s.closeServer()
}

func (s *Server) openServer() error {
	s.mu.Lock()
	if s.lnClosed {
		s.mu.Unlock()
		return errors.Unsupported("open", s.addr, errors.ErrClosed)
	}
	s.logger.Info("opening server on port %d", s.port)
	if !s.open {
		s.open = true
		s.manager.openServers.Add(1)
	}
	startLoop := !s.accepting
	s.accepting = true
	s.mu.Unlock()

	if !startLoop {
		return nil
	}
	if err := s.manager.executor.Submit(s.acceptOnce); err != nil {
		s.mu.Lock()
		s.accepting = false
		s.mu.Unlock()
		return errors.Unsupported("open", s.addr, err)
	}
	return nil
}

func (s *Server) closeServer() error {
	s.mu.Lock()
	if s.open {
		s.open = false
		s.manager.openServers.Add(-1)
	}
	if s.lnClosed {
		s.mu.Unlock()
		return nil
	}
	s.lnClosed = true
	s.mu.Unlock()

	if err := s.ln.Close(); err != nil {
		return errors.Unsupported("close", s.addr, err)
	}
	s.logger.Info("server on port %d closed", s.port)
	return nil
}

// acceptOnce waits for one connection, notifies the callbacks, starts
// the connection's read pump and schedules the next accept.
func (s *Server) acceptOnce() {
	s.logger.Debug("waiting for a connection")
	nc, err := s.ln.Accept()
	if err != nil {
		s.acceptFailed(err)
		return
	}

	target, port, err := remoteOf(nc)
	if err != nil {
		s.logger.Error("error accepting connection: %v", err)
		nc.Close() //nolint:errcheck
		s.next()
		return
	}
	s.logger.Debug("connection accepted from %s", net.JoinHostPort(target.String(), strconv.Itoa(port)))

	c := s.manager.newConnection(nc, target, port)
	s.notify(c)
	c.start()
	s.next()
}

// notify runs every callback.  A panic stops the accept loop so that a
// later SetOpen(true) can restart it; the executor reports the panic.
func (s *Server) notify(c *Connection) {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.accepting = false
			s.mu.Unlock()
			s.logger.Error("connect callback panicked, accept loop stopped until SetOpen(true): %s", panicMessage(r))
			c.Close() //nolint:errcheck
			panic(r)
		}
	}()
	s.logger.Debug("notifying listeners")
	for _, r := range s.snapshot() {
		r.handler.HandleConnection(c)
	}
}

// next schedules the following accept while the server is open.
func (s *Server) next() {
	s.mu.Lock()
	if !s.open {
		s.accepting = false
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.manager.executor.Submit(s.acceptOnce); err != nil {
		s.logger.Debug("accept loop stopped: %v", err)
		s.mu.Lock()
		s.accepting = false
		s.mu.Unlock()
	}
}

func (s *Server) acceptFailed(err error) {
	s.mu.Lock()
	s.accepting = false
	open := s.open
	s.mu.Unlock()

	if !open || errors.IsClosedConn(err) {
		s.logger.Debug("accept loop stopped: %v", err)
	} else {
		s.logger.Error("error accepting connection: %v", err)
	}
	if err := s.closeServer(); err != nil {
		s.logger.Error("%v", err)
	}
}
