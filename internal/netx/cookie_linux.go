package netx

import (
	"net"
	"syscall"
	"unsafe"
)

// SO_COOKIE from asm-generic/socket.h. The syscall package does not export it.
const soCookie = 57

// Cookie returns the kernel's socket cookie of c.
func Cookie(c *net.TCPConn) (uint64, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return 0, err
	}
	var cookie uint64
	size := uint32(unsafe.Sizeof(cookie))
	var errno syscall.Errno
	err = raw.Control(func(fd uintptr) {
		_, _, errno = syscall.Syscall6(syscall.SYS_GETSOCKOPT, fd,
			syscall.SOL_SOCKET, soCookie,
			uintptr(unsafe.Pointer(&cookie)), uintptr(unsafe.Pointer(&size)), 0)
	})
	if err != nil {
		return 0, err
	}
	if errno != 0 {
		return 0, errno
	}
	return cookie, nil
}
