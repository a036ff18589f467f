package probe

import (
	"time"
)

// Kind tells an instantaneous rate from a cycle average.
type Kind int

const (
	// Instant rows carry the rate of a single tick.
	Instant Kind = iota
	// Average rows carry bytesInCycle / measure and replace the instant
	// value in the same cell.
	Average
)

func (k Kind) String() string {
	switch k {
	case Instant:
		return "instant"
	case Average:
		return "average"
	default:
		return "unknown"
	}
}

// Cycle identifies one probe cycle of one endpoint.
type Cycle struct {
	ID       string
	Endpoint int
	Slot     int
	Seq      int
	Start    time.Time
}

// Row is the value of one cell of the matrix at one tick.
type Row struct {
	Endpoint int
	Slot     int
	Seq      int
	Kind     Kind
	Bytes    int64
	Elapsed  time.Duration
	// Rate is in bytes per second.
	Rate float64
	Time time.Time
}

// Summary describes a finalized cycle. Rates are in bytes per second.
type Summary struct {
	CycleID  string
	Endpoint int
	Slot     int
	Seq      int
	Start    time.Time
	Bytes    int64
	Average  float64
	Smoothed float64
	P50      float64
	P90      float64
	Max      float64
	Transfer Transfer
}

// Rate returns bytes/elapsed in bytes per second, or 0 when elapsed is not
// positive.
func Rate(bytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 || bytes <= 0 {
		return 0
	}
	return float64(bytes) / elapsed.Seconds()
}
