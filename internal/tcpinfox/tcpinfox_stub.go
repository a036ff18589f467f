//go:build !linux
// +build !linux

package tcpinfox

import (
	"net"

	"github.com/m-lab/tcp-info/tcp"
)

func GetTCPInfo(*net.TCPConn) (*tcp.LinuxTCPInfo, error) {
	return nil, ErrNoSupport
}
