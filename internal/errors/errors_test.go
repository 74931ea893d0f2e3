package errors

import (
	"fmt"
	"io"
	"net"
	"testing"
)

func TestNetworkError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  NetworkError
		want string
	}{
		{
			name: "retryable",
			err:  NetworkError{Op: "dial", Addr: "127.0.0.1:80", Err: io.EOF, Retryable: true},
			want: "dial 127.0.0.1:80: EOF (retryable)",
		},
		{
			name: "with kind",
			err:  NetworkError{Op: "listen", Addr: "127.0.0.1:8080", Kind: ErrInvalidArgument, Err: fmt.Errorf("bind failed")},
			want: "listen 127.0.0.1:8080: invalid argument: bind failed",
		},
		{
			name: "kind only",
			err:  NetworkError{Op: "open", Addr: "127.0.0.1:9000", Kind: ErrUnsupportedOperation},
			want: "open 127.0.0.1:9000: unsupported operation",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetworkError_UnwrapBoth(t *testing.T) {
	err := Unsupported("write", "x", io.ErrShortWrite)
	if !Is(err, ErrUnsupportedOperation) {
		t.Error("should match ErrUnsupportedOperation")
	}
	if !Is(err, io.ErrShortWrite) {
		t.Error("should unwrap to the cause")
	}
	if Is(err, ErrInvalidArgument) {
		t.Error("should not match ErrInvalidArgument")
	}
}

func TestInvalidArgument(t *testing.T) {
	err := InvalidArgument("listen", "127.0.0.1:70000", nil)
	if !Is(err, ErrInvalidArgument) {
		t.Error("should match ErrInvalidArgument")
	}
	var ne *NetworkError
	if !As(err, &ne) || ne.Op != "listen" {
		t.Errorf("As failed or wrong op: %+v", ne)
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "port",
				Value:   99999,
				Message: "out of range 0-65535",
				Hint:    "use a port between 0 and 65535",
			},
			want: "config: port=99999: out of range 0-65535\n  hint: use a port between 0 and 65535",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "host",
				Message: "required in connect mode",
			},
			want: "config: host: required in connect mode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestConfigError_IsInvalidArgument(t *testing.T) {
	err := &ConfigError{Field: "port", Message: "bad"}
	if !Is(err, ErrInvalidArgument) {
		t.Error("ConfigError should match ErrInvalidArgument")
	}
}

func TestWrap(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := Wrap("dial", "10.0.0.1:22", inner)

	if err.Op != "dial" || err.Addr != "10.0.0.1:22" {
		t.Errorf("wrong fields: Op=%q Addr=%q", err.Op, err.Addr)
	}
	if !Is(err, inner) {
		t.Error("should unwrap to inner error")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable network", &NetworkError{Op: "dial", Addr: "x", Err: io.EOF, Retryable: true}, true},
		{"non-retryable network", &NetworkError{Op: "dial", Addr: "x", Err: io.EOF, Retryable: false}, false},
		{"plain error", fmt.Errorf("boom"), false},
		{"dial op error", &net.OpError{Op: "dial", Net: "tcp", Err: fmt.Errorf("refused")}, true},
		{"read op error", &net.OpError{Op: "read", Net: "tcp", Err: fmt.Errorf("reset")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsClosedConn(t *testing.T) {
	if !IsClosedConn(&net.OpError{Op: "read", Net: "tcp", Err: net.ErrClosed}) {
		t.Error("net.ErrClosed should count as closed")
	}
	if !IsClosedConn(Wrap("read", "x", ErrClosed)) {
		t.Error("ErrClosed should count as closed")
	}
	if IsClosedConn(io.ErrUnexpectedEOF) {
		t.Error("unexpected EOF is not a closed-conn error")
	}
	if IsClosedConn(nil) {
		t.Error("nil is not a closed-conn error")
	}
}

func TestSentinels(t *testing.T) {
	sentinels := []error{
		ErrInvalidArgument, ErrUnsupportedOperation, ErrClosed, ErrExecutorClosed,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("sentinel %d and %d should not match", i, j)
			}
		}
	}
}
