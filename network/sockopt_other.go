//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package network

import (
	"syscall"

	"asyncnet/internal/errors"
)

func listenControl(reusePort bool) func(network, address string, c syscall.RawConn) error {
	if !reusePort {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		return errors.New("SO_REUSEPORT is not supported on this platform")
	}
}
