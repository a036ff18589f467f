// Package samples holds the per-endpoint buffers written by downloaders and
// drained by the aggregator.
package samples

import (
	"sync"
	"time"
)

// Sample is one observation of bytes received from an endpoint.
type Sample struct {
	Endpoint int
	Time     time.Time
	Bytes    int
}

// Buffer is an append-only sequence of samples for a single endpoint.
//
// Append and Drain may be called concurrently. Drain takes the whole content
// and leaves the buffer empty in one step, so a sample is returned by exactly
// one Drain.
type Buffer struct {
	mu      sync.Mutex
	samples []Sample
}

// Append adds s at the end of the buffer.
func (b *Buffer) Append(s Sample) {
	b.mu.Lock()
	b.samples = append(b.samples, s)
	b.mu.Unlock()
}

// Drain returns every sample appended since the previous Drain, in arrival
// order.
func (b *Buffer) Drain() []Sample {
	b.mu.Lock()
	out := b.samples
	b.samples = nil
	b.mu.Unlock()
	return out
}

// Len returns the number of samples waiting to be drained.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Sum returns the total byte count of ss.
func Sum(ss []Sample) int64 {
	var n int64
	for _, s := range ss {
		n += int64(s.Bytes)
	}
	return n
}

// NewSet returns one Buffer per endpoint, indexed by endpoint position.
func NewSet(n int) []*Buffer {
	set := make([]*Buffer, n)
	for i := range set {
		set[i] = &Buffer{}
	}
	return set
}
