package core

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"asyncnet/config"
	"asyncnet/internal/buffer"
	"asyncnet/internal/errors"
	"asyncnet/internal/retry"
	"asyncnet/network"
	"asyncnet/util"
)

// ConnectMode dials a remote address and relays stdin to the
// connection and the connection to stdout, the default client mode.
type ConnectMode struct {
	Manager *network.Manager
	Host    string
	Port    int
	NoDNS   bool
	Backoff *retry.Backoff // nil means a single attempt
	Logger  *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run connects, retrying per Backoff, and relays until the peer closes
// the connection or ctx is cancelled.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Manager.Close()

	ip, err := util.ResolveIP(m.Host, m.NoDNS)
	if err != nil {
		return err
	}
	address := util.FormatAddr(ip.String(), m.Port)
	m.Logger.Verbose("connecting to %s", address)

	b := m.Backoff
	if b == nil {
		b = &retry.Backoff{MaxAttempts: 1}
	}
	var conn *network.Connection
	err = b.Do(ctx, func(int) error {
		c, err := m.dial(ctx, ip)
		conn = c
		return err
	})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", address, err)
	}
	m.Logger.Verbose("connected to %s", conn.RemoteAddr())

	return m.relay(ctx, conn)
}

// dial turns the callback pair of CreateConnection into a blocking
// call bounded by ctx.
func (m *ConnectMode) dial(ctx context.Context, ip net.IP) (*network.Connection, error) {
	type result struct {
		conn *network.Connection
		err  error
	}
	done := make(chan result, 1)
	m.Manager.CreateConnection(ip, m.Port,
		func(c *network.Connection) { done <- result{conn: c} },
		func(err error) { done <- result{err: err} })

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close() //nolint:errcheck
			}
		}()
		return nil, retry.Permanent(ctx.Err())
	}
}

// relay shuttles bytes until the socket is released.  When stdin ends
// the write side is half-closed so the peer knows we are done sending,
// while its replies keep arriving.
func (m *ConnectMode) relay(ctx context.Context, conn *network.Connection) error {
	out := m.stdout()
	conn.QueueConsumer(buffer.ConsumerFunc(func(r *buffer.Reader) bool {
		if _, err := out.Write(r.Rest()); err != nil {
			m.Logger.Error("write output: %v", err)
			conn.Close() //nolint:errcheck
			return true
		}
		return false
	}))

	sendErr := make(chan error, 1)
	go func() {
		_, err := io.Copy(conn, m.stdin())
		if err != nil && !errors.IsClosedConn(err) {
			conn.Close() //nolint:errcheck
			sendErr <- err
			return
		}
		if err := conn.CloseWrite(); err != nil {
			m.Logger.Verbose("half-close: %v", err)
		}
	}()

	select {
	case <-conn.Done():
	case err := <-sendErr:
		return fmt.Errorf("send: %w", err)
	case <-ctx.Done():
		conn.Close() //nolint:errcheck
		select {
		case <-conn.Done():
		case <-time.After(config.DefaultGracePeriod):
			m.Logger.Warn("connection to %s still busy after %s", conn.RemoteAddr(), config.DefaultGracePeriod)
		}
	}
	m.Logger.Verbose("connection to %s closed", conn.RemoteAddr())
	return nil
}
