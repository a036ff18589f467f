// Package tcpinfox reads the kernel TCP_INFO of a connection into the
// tcp-info representation.
package tcpinfox

import "errors"

// ErrNoSupport is returned on platforms without TCP_INFO.
var ErrNoSupport = errors.New("TCP_INFO not supported")
