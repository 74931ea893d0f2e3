package core

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"asyncnet/internal/errors"
	"asyncnet/internal/retry"
	"asyncnet/network"
	"asyncnet/util"
)

func newConnectMode(port int, stdin io.Reader, stdout io.Writer) *ConnectMode {
	logger := util.NewLogger(0)
	return &ConnectMode{
		Manager: network.New(network.Options{Logger: logger, DialTimeout: 2 * time.Second}),
		Host:    "127.0.0.1",
		Port:    port,
		NoDNS:   true,
		Logger:  logger,
		Stdin:   stdin,
		Stdout:  stdout,
	}
}

// TestConnectMode_Receive verifies that server output reaches stdout.
func TestConnectMode_Receive(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	// Server: accept one conn, send greeting, close.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("hello from server\n")) //nolint:errcheck
	}()

	output := &syncBuffer{}
	mode := newConnectMode(ln.Addr().(*net.TCPAddr).Port, bytes.NewBufferString(""), output)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := mode.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := output.String(); got != "hello from server\n" {
		t.Errorf("output = %q, want %q", got, "hello from server\n")
	}
}

// TestConnectMode_SendData verifies data flows from stdin to the
// server, and that the half-close on stdin EOF lets the server finish.
func TestConnectMode_SendData(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var buf bytes.Buffer
		io.Copy(&buf, conn) //nolint:errcheck
		received <- buf.String()
	}()

	mode := newConnectMode(ln.Addr().(*net.TCPAddr).Port,
		bytes.NewBufferString("payload from client"), &syncBuffer{})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := mode.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case got := <-received:
		if got != "payload from client" {
			t.Errorf("server got %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for data")
	}
}

// TestConnectMode_Echo round-trips stdin through an echo server.
func TestConnectMode_Echo(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn) //nolint:errcheck
	}()

	output := &syncBuffer{}
	mode := newConnectMode(ln.Addr().(*net.TCPAddr).Port, bytes.NewBufferString("round trip"), output)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := mode.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := output.String(); got != "round trip" {
		t.Errorf("output = %q, want %q", got, "round trip")
	}
}

// TestConnectMode_Retries verifies that refused connections are
// retried the configured number of times.
func TestConnectMode_Retries(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}

	mode := newConnectMode(port, bytes.NewBufferString(""), &syncBuffer{})
	var retries int
	mode.Backoff = &retry.Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		MaxAttempts:  3,
		Retryable:    errors.IsRetryable,
		OnRetry:      func(int, error, time.Duration) { retries++ },
	}

	err = mode.Run(context.Background())
	if err == nil {
		t.Fatal("expected connection error")
	}
	if retries != 2 {
		t.Errorf("retries = %d, want 2", retries)
	}
}

// TestConnectMode_Cancel verifies that cancelling the context ends an
// idle session.
func TestConnectMode_Cancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	// A reader that never ends keeps the session open.
	stdin, stdinW := io.Pipe()
	defer stdinW.Close()

	mode := newConnectMode(ln.Addr().(*net.TCPAddr).Port, stdin, &syncBuffer{})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- mode.Run(ctx) }()

	select {
	case conn := <-accepted:
		defer conn.Close()
	case <-time.After(3 * time.Second):
		t.Fatal("never connected")
	}
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
