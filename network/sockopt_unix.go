//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package network

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// listenControl returns the socket hook applied before bind.  With
// reusePort set, several processes may bind the same port and the
// kernel balances accepts between them.
func listenControl(reusePort bool) func(network, address string, c syscall.RawConn) error {
	if !reusePort {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var serr error
		err := c.Control(func(fd uintptr) {
			serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		})
		if err != nil {
			return err
		}
		return serr
	}
}
