//go:build unix

package core

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlSocket sets SO_REUSEADDR before bind, so a restart does not trip
// over the previous instance's TIME_WAIT sockets.
func controlSocket(network, address string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return sockErr
}
