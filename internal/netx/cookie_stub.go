//go:build !linux
// +build !linux

package netx

import "net"

func Cookie(*net.TCPConn) (uint64, error) {
	return 0, ErrNoSupport
}
