// Package congestion selects the TCP congestion control algorithm of a
// connection.
package congestion

import "errors"

// ErrNoSupport is returned on platforms where the algorithm cannot be set.
var ErrNoSupport = errors.New("congestion control selection not supported")

// Default leaves the kernel's choice untouched.
const Default = "default"
