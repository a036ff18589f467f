package netx

import (
	"errors"
	"net"

	"github.com/m-lab/uuid"
)

// ErrNoSupport is returned on platforms without socket cookies.
var ErrNoSupport = errors.New("socket cookies not supported")

// FlowID returns the m-lab UUID of the TCP flow under c. It reads the socket
// cookie through SyscallConn, so c stays in non-blocking mode and deadlines
// keep working.
func FlowID(c net.Conn) (string, error) {
	tc, err := ToTCPConn(c)
	if err != nil {
		return "", err
	}
	cookie, err := Cookie(tc)
	if err != nil {
		return "", err
	}
	return uuid.FromCookie(cookie), nil
}
