// Package netx extracts the TCP connection from the net.Conn values handed out
// by net/http.
package netx

import (
	"crypto/tls"
	"errors"
	"net"
)

var (
	// ErrNoConn is returned when no connection was captured.
	ErrNoConn = errors.New("no connection")

	// ErrNotTCP is returned for connections that are not TCP.
	ErrNotTCP = errors.New("not a TCP connection")
)

// ToTCPConn returns the *net.TCPConn under c. TLS connections are unwrapped.
func ToTCPConn(c net.Conn) (*net.TCPConn, error) {
	switch conn := c.(type) {
	case nil:
		return nil, ErrNoConn
	case *net.TCPConn:
		return conn, nil
	case *tls.Conn:
		return ToTCPConn(conn.NetConn())
	default:
		return nil, ErrNotTCP
	}
}
