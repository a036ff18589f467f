package congestion

import (
	"net"
	"syscall"
)

// Set sets the congestion control algorithm of c to cc. The kernel rejects
// algorithms that are not loaded.
func Set(c *net.TCPConn, cc string) error {
	if cc == Default {
		return nil
	}
	raw, err := c.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	err = raw.Control(func(fd uintptr) {
		serr = syscall.SetsockoptString(int(fd), syscall.IPPROTO_TCP,
			syscall.TCP_CONGESTION, cc)
	})
	if err != nil {
		return err
	}
	return serr
}
