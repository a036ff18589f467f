package emitter

import (
	"github.com/dustin/go-humanize"
	"github.com/robertodauria/speedmatrix/pkg/probe"
	"go.uber.org/zap"
)

// Emitter observes a run. All methods are called from the tick loop except
// OnStart and OnError, which are called from the cycle's goroutine.
type Emitter interface {
	OnStart(probe.Cycle)
	OnMeasurement(probe.Row)
	OnComplete(probe.Summary)
	OnError(endpoint int, err error)
}

// LogEmitter logs every event with zap. Names maps endpoint indexes to names.
type LogEmitter struct {
	Names []string
}

func (e *LogEmitter) name(i int) string {
	if i >= 0 && i < len(e.Names) {
		return e.Names[i]
	}
	return "?"
}

func rate(r float64) string {
	return humanize.Bytes(uint64(r)) + "/s"
}

func (e *LogEmitter) OnStart(c probe.Cycle) {
	zap.L().Sugar().Debugw("Starting cycle",
		"endpoint", e.name(c.Endpoint), "slot", c.Slot, "seq", c.Seq, "cycle", c.ID)
}

func (e *LogEmitter) OnMeasurement(r probe.Row) {
	if r.Kind != probe.Instant {
		return
	}
	zap.L().Sugar().Debugw("Tick",
		"endpoint", e.name(r.Endpoint), "slot", r.Slot, "bytes", r.Bytes, "rate", rate(r.Rate))
}

func (e *LogEmitter) OnComplete(s probe.Summary) {
	zap.L().Sugar().Infow("Cycle complete",
		"endpoint", e.name(s.Endpoint),
		"slot", s.Slot,
		"cycle", s.CycleID,
		"average", rate(s.Average),
		"smoothed", rate(s.Smoothed),
		"p50", rate(s.P50),
		"p90", rate(s.P90),
		"max", rate(s.Max),
		"bytes", s.Bytes,
		"flow", s.Transfer.FlowID,
		"rtt", s.Transfer.RTT,
		"retransmits", s.Transfer.Retransmits)
}

func (e *LogEmitter) OnError(endpoint int, err error) {
	zap.L().Sugar().Warnw("Download failed", "endpoint", e.name(endpoint), "err", err)
}

// Multi forwards every event to each of its emitters, in order.
type Multi []Emitter

func (m Multi) OnStart(c probe.Cycle) {
	for _, e := range m {
		e.OnStart(c)
	}
}

func (m Multi) OnMeasurement(r probe.Row) {
	for _, e := range m {
		e.OnMeasurement(r)
	}
}

func (m Multi) OnComplete(s probe.Summary) {
	for _, e := range m {
		e.OnComplete(s)
	}
}

func (m Multi) OnError(endpoint int, err error) {
	for _, e := range m {
		e.OnError(endpoint, err)
	}
}
