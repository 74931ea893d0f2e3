package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"asyncnet/internal/buffer"
	"asyncnet/network"
	"asyncnet/util"
)

// ListenMode opens a server and serves every accepted connection until
// the context is cancelled.  By default each connection is echoed back
// to its sender; with Print set the received bytes go to Stdout
// instead.
type ListenMode struct {
	Manager *network.Manager
	Port    int // 0 picks an ephemeral port
	Print   bool
	Logger  *util.Logger

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer
	// Ready, when set, is called with the bound port once the server
	// is accepting.
	Ready func(port int)

	outMu sync.Mutex
}

func (m *ListenMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run opens the server and blocks until ctx is done.
func (m *ListenMode) Run(ctx context.Context) error {
	defer m.Manager.Close()

	srv, err := m.Manager.GetServer(m.Port)
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", m.Port, err)
	}
	srv.AddConnectCallback(network.ConnectFunc(m.serve))
	if err := srv.SetOpen(true); err != nil {
		return err
	}
	m.Logger.Verbose("listening on %s", srv.Addr())
	if m.Ready != nil {
		m.Ready(srv.Port())
	}

	<-ctx.Done()
	return srv.SetOpen(false)
}

// serve is the connect callback: it queues the consumer that handles
// everything the peer sends.
func (m *ListenMode) serve(c *network.Connection) {
	m.Logger.Verbose("connection from %s", c.RemoteAddr())
	if m.Print {
		c.QueueConsumer(buffer.ConsumerFunc(m.print))
		return
	}
	c.QueueConsumer(buffer.ConsumerFunc(func(r *buffer.Reader) bool {
		if err := c.Accept(buffer.Bytes(r.Rest())); err != nil {
			m.Logger.Verbose("echo to %s: %v", c.RemoteAddr(), err)
			return true
		}
		return false
	}))
}

func (m *ListenMode) print(r *buffer.Reader) bool {
	m.outMu.Lock()
	defer m.outMu.Unlock()
	if _, err := m.stdout().Write(r.Rest()); err != nil {
		m.Logger.Error("write output: %v", err)
		return true
	}
	return false
}
