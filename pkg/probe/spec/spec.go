// Package spec contains the constants shared by the speedmatrix prober and
// the bulk-data server.
package spec

import "time"

const (
	// DefaultWarmup is the initial part of a cycle whose bytes are discarded.
	DefaultWarmup = 8 * time.Second

	// DefaultMeasure is the length of the measurement window.
	DefaultMeasure = 10 * time.Second

	// DefaultTick is the aggregation/render interval.
	DefaultTick = time.Second

	// DefaultCooldown is the pause between the end of a cycle and the next
	// cycle for the same endpoint.
	DefaultCooldown = 2 * time.Second

	// DefaultSaturation is the rate (bytes/s) at which a cell is drawn in
	// the saturated style.
	DefaultSaturation = 19_000_000

	DefaultColumnWidth = 12
	DefaultHeaderWidth = 10
	DefaultBlockRows   = 60
	DefaultLabelEvery  = 12
)

const (
	// ReadBufferSize is the size of the buffer used to read response bodies.
	// Every successful read becomes one Sample.
	ReadBufferSize = 32 << 10

	// MinChunkSize and MaxChunkSize bound the size of the chunks written by
	// the bulk-data server.
	MinChunkSize = 1 << 10
	MaxChunkSize = 1 << 20

	// ScalingFraction controls chunk growth: the chunk size doubles while it
	// is smaller than bytesSent/ScalingFraction.
	ScalingFraction = 16

	// MaxRuntime bounds a single bulk-data response.
	MaxRuntime = 60 * time.Second
)

const (
	// DownloadPath is served by the bulk-data server.
	DownloadPath = "/download"

	// LivePath is the WebSocket feed of rendered cells.
	LivePath = "/v1/live"

	// LiveProtocol is the WebSocket subprotocol of the live feed.
	LiveProtocol = "net.speedmatrix.live.v1"
)

// Policy selects how cycles of different endpoints are scheduled.
type Policy string

const (
	// PolicyRoundRobin runs one Downloader at a time. Each endpoint is
	// measured without contention from the others.
	PolicyRoundRobin = Policy("round-robin")

	// PolicyParallel starts every endpoint's cycle together. Rates share the
	// local link and are only meaningful relative to each other.
	PolicyParallel = Policy("parallel")
)
