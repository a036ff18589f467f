package tcpinfox

import (
	"net"
	"syscall"
	"unsafe"

	"github.com/m-lab/tcp-info/tcp"
)

// GetTCPInfo returns the TCP_INFO of c. LinuxTCPInfo mirrors the kernel's
// struct tcp_info, so the kernel fills it directly.
func GetTCPInfo(c *net.TCPConn) (*tcp.LinuxTCPInfo, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return nil, err
	}
	info := &tcp.LinuxTCPInfo{}
	size := uint32(unsafe.Sizeof(*info))
	var errno syscall.Errno
	err = raw.Control(func(fd uintptr) {
		_, _, errno = syscall.Syscall6(syscall.SYS_GETSOCKOPT, fd,
			syscall.SOL_TCP, syscall.TCP_INFO,
			uintptr(unsafe.Pointer(info)), uintptr(unsafe.Pointer(&size)), 0)
	})
	if err != nil {
		return nil, err
	}
	if errno != 0 {
		return nil, errno
	}
	return info, nil
}
