package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// MinPort and MaxPort bound every port the transport accepts.
	MinPort = 0
	MaxPort = 65535

	// DefaultBindAddress is the loopback address servers bind to.
	DefaultBindAddress = "127.0.0.1"

	// DefaultBufferSize is the size of each connection's read and write
	// scratch buffers and the initial receive buffer capacity.
	DefaultBufferSize = 4096

	// DefaultWorkerIdleTimeout is how long an idle pool worker lingers
	// before exiting.
	DefaultWorkerIdleTimeout = 60 * time.Second

	// DefaultConnTimeout is the outbound TCP connect timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultMaxRetryBackoff caps the exponential backoff between
	// connect attempts.
	DefaultMaxRetryBackoff = 10 * time.Second

	// DefaultGracePeriod is how long shutdown waits for pending output
	// to be flushed.
	DefaultGracePeriod = 2 * time.Second
)
