package probe

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/VividCortex/ewma"
	"github.com/robertodauria/speedmatrix/pkg/probe/samples"
)

// Histogram bounds for tick rates, in bytes per second.
const (
	histMin     = 1
	histMax     = 100_000_000_000
	histSigFigs = 2
)

// window is the aggregation state of one endpoint.
type window struct {
	mu sync.Mutex

	active     bool
	finalized  bool
	attached   bool
	reported   bool
	cycleID    string
	slot       int
	seq        int
	cycleStart time.Time
	lastTick   time.Time
	bytes      int64

	hist     *hdrhistogram.Histogram
	smoothed ewma.MovingAverage
	summary  Summary
	transfer Transfer

	// Output produced outside Tick, flushed by the next Tick.
	pendingRows []Row
	pendingSums []Summary
}

// Aggregator turns the samples of every endpoint into rows, once per tick.
// Each endpoint's state has its own lock, so Begin and Attach for one
// endpoint never wait on another.
type Aggregator struct {
	warmup  time.Duration
	measure time.Duration
	buffers []*samples.Buffer
	windows []*window
}

// NewAggregator returns an Aggregator draining buffers, one per endpoint.
func NewAggregator(buffers []*samples.Buffer, warmup, measure time.Duration) *Aggregator {
	a := &Aggregator{
		warmup:  warmup,
		measure: measure,
		buffers: buffers,
		windows: make([]*window, len(buffers)),
	}
	for i := range a.windows {
		a.windows[i] = &window{
			hist:     hdrhistogram.New(histMin, histMax, histSigFigs),
			smoothed: ewma.NewMovingAverage(),
		}
	}
	return a
}

// Begin starts a new cycle for endpoint and returns its sequence number.
// A previous cycle that was not finalized yet is finalized first; its
// average row and summary come out of the next Tick.
func (a *Aggregator) Begin(endpoint, slot int, cycleID string, start time.Time) int {
	w := a.windows[endpoint]
	w.mu.Lock()
	defer w.mu.Unlock()

	bytes := samples.Sum(a.buffers[endpoint].Drain())
	if w.active {
		if !w.finalized {
			w.bytes += bytes
			w.pendingRows = append(w.pendingRows, a.finalize(w, endpoint, start))
		}
		if !w.reported {
			w.pendingSums = append(w.pendingSums, w.report())
		}
	}

	w.active = true
	w.finalized = false
	w.attached = false
	w.reported = false
	w.cycleID = cycleID
	w.slot = slot
	w.seq++
	w.cycleStart = start
	w.lastTick = start
	w.bytes = 0
	w.hist.Reset()
	w.transfer = Transfer{}
	return w.seq
}

// Attach records the Downloader's report for cycle seq of endpoint. Reports
// for an older cycle are ignored.
func (a *Aggregator) Attach(endpoint, seq int, tr Transfer) {
	w := a.windows[endpoint]
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active || seq != w.seq {
		return
	}
	w.transfer = tr
	w.attached = true
}

// Tick drains every endpoint's buffer and returns the rows to draw and the
// summaries of cycles that completed. An endpoint's tick clock advances on
// every call, even when it received nothing.
func (a *Aggregator) Tick(now time.Time) ([]Row, []Summary) {
	var (
		rows []Row
		sums []Summary
	)
	for i := range a.windows {
		r, s := a.tick(i, now)
		rows = append(rows, r...)
		sums = append(sums, s...)
	}
	return rows, sums
}

func (a *Aggregator) tick(endpoint int, now time.Time) ([]Row, []Summary) {
	w := a.windows[endpoint]
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, sums := w.pendingRows, w.pendingSums
	w.pendingRows, w.pendingSums = nil, nil

	bytes := samples.Sum(a.buffers[endpoint].Drain())
	var elapsed time.Duration
	if !w.lastTick.IsZero() {
		elapsed = now.Sub(w.lastTick)
	}
	w.lastTick = now

	if !w.active {
		return rows, sums
	}
	if !w.finalized {
		phase := now.Sub(w.cycleStart)
		if phase > a.warmup {
			w.bytes += bytes
			rate := Rate(bytes, elapsed)
			w.record(rate)
			rows = append(rows, Row{
				Endpoint: endpoint,
				Slot:     w.slot,
				Seq:      w.seq,
				Kind:     Instant,
				Bytes:    bytes,
				Elapsed:  elapsed,
				Rate:     rate,
				Time:     now,
			})
		}
		if phase >= a.warmup+a.measure {
			rows = append(rows, a.finalize(w, endpoint, now))
		}
	}
	// The summary waits for the Downloader's report.
	if w.finalized && w.attached && !w.reported {
		sums = append(sums, w.report())
	}
	return rows, sums
}

func (w *window) record(rate float64) {
	v := int64(rate)
	if v > histMax {
		v = histMax
	}
	// Only out-of-range values fail, and v is clamped.
	_ = w.hist.RecordValue(v)
}

// finalize closes the measurement window and returns the average row.
func (a *Aggregator) finalize(w *window, endpoint int, now time.Time) Row {
	avg := Rate(w.bytes, a.measure)
	w.smoothed.Add(avg)
	w.finalized = true
	w.summary = Summary{
		CycleID:  w.cycleID,
		Endpoint: endpoint,
		Slot:     w.slot,
		Seq:      w.seq,
		Start:    w.cycleStart,
		Bytes:    w.bytes,
		Average:  avg,
		Smoothed: w.smoothed.Value(),
		P50:      float64(w.hist.ValueAtQuantile(50)),
		P90:      float64(w.hist.ValueAtQuantile(90)),
		Max:      float64(w.hist.Max()),
	}
	return Row{
		Endpoint: endpoint,
		Slot:     w.slot,
		Seq:      w.seq,
		Kind:     Average,
		Bytes:    w.bytes,
		Elapsed:  a.measure,
		Rate:     avg,
		Time:     now,
	}
}

func (w *window) report() Summary {
	w.reported = true
	s := w.summary
	s.Transfer = w.transfer
	return s
}
