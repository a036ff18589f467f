//go:build !linux
// +build !linux

package congestion

import "net"

func Set(c *net.TCPConn, cc string) error {
	if cc == Default {
		return nil
	}
	return ErrNoSupport
}
