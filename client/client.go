package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"github.com/m-lab/go/memoryless"
	"github.com/robertodauria/speedmatrix/client/config"
	"github.com/robertodauria/speedmatrix/client/emitter"
	"github.com/robertodauria/speedmatrix/pkg/probe"
	"github.com/robertodauria/speedmatrix/pkg/probe/samples"
	"github.com/robertodauria/speedmatrix/pkg/probe/spec"
	"golang.org/x/sync/errgroup"
)

// Display receives the rows of every tick.
type Display interface {
	Render(rows []probe.Row) error
}

type downloadFunc func(ctx context.Context, endpoint int, url string, buf *samples.Buffer) (probe.Transfer, error)

// Client runs probe cycles against every configured endpoint and reports
// the results once per tick.
type Client struct {
	config  *config.ClientConfig
	buffers []*samples.Buffer
	agg     *probe.Aggregator
	display Display
	emitter emitter.Emitter

	download downloadFunc
	now      func() time.Time
}

// New returns a Client for cfg. display may be nil.
func New(cfg *config.ClientConfig, display Display, e emitter.Emitter) *Client {
	buffers := samples.NewSet(len(cfg.Endpoints))
	d := probe.NewDownloader(cfg.Warmup, cfg.Measure, cfg.UserAgent)
	if e == nil {
		e = emitter.Multi{}
	}
	return &Client{
		config:   cfg,
		buffers:  buffers,
		agg:      probe.NewAggregator(buffers, cfg.Warmup, cfg.Measure),
		display:  display,
		emitter:  e,
		download: d.Run,
		now:      time.Now,
	}
}

// Run probes until ctx is canceled or the display fails. Cancellation is not
// an error.
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.tickLoop(ctx)
	})
	g.Go(func() error {
		switch c.config.Policy {
		case spec.PolicyParallel:
			c.runParallel(ctx)
		default:
			c.runRoundRobin(ctx)
		}
		return nil
	})
	return g.Wait()
}

func (c *Client) tickLoop(ctx context.Context) error {
	ticker, err := memoryless.NewTicker(ctx, memoryless.Config{
		Min:      c.config.Tick,
		Expected: c.config.Tick,
		Max:      c.config.Tick,
	})
	if err != nil {
		return err
	}
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			if err := c.tick(c.now()); err != nil {
				return err
			}
		}
	}
}

// tick aggregates, draws and reports one interval.
func (c *Client) tick(now time.Time) error {
	rows, sums := c.agg.Tick(now)
	if c.display != nil && len(rows) > 0 {
		if err := c.display.Render(rows); err != nil {
			return fmt.Errorf("render: %w", err)
		}
	}
	for _, r := range rows {
		c.emitter.OnMeasurement(r)
	}
	for _, s := range sums {
		c.emitter.OnComplete(s)
	}
	return nil
}

// runRoundRobin measures one endpoint at a time. A full round of endpoints
// shares one slot.
func (c *Client) runRoundRobin(ctx context.Context) {
	var queue deque.Deque[int]
	for i := range c.config.Endpoints {
		queue.PushBack(i)
	}
	n := queue.Len()
	for cycle := 0; ctx.Err() == nil; cycle++ {
		i := queue.PopFront()
		c.runCycle(ctx, i, cycle/n)
		queue.PushBack(i)
		if !sleep(ctx, c.config.Cooldown) {
			return
		}
	}
}

// runParallel starts every endpoint's cycle together, one slot per cycle.
func (c *Client) runParallel(ctx context.Context) {
	for slot := 0; ctx.Err() == nil; slot++ {
		var wg sync.WaitGroup
		for i := range c.config.Endpoints {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c.runCycle(ctx, i, slot)
			}(i)
		}
		wg.Wait()
		if !sleep(ctx, c.config.Cooldown) {
			return
		}
	}
}

// runCycle runs one probe cycle of endpoint i. Download failures are
// reported and end the cycle early; the window still closes on schedule.
func (c *Client) runCycle(ctx context.Context, i, slot int) {
	id := uuid.NewString()
	start := c.now()
	seq := c.agg.Begin(i, slot, id, start)
	c.emitter.OnStart(probe.Cycle{ID: id, Endpoint: i, Slot: slot, Seq: seq, Start: start})

	dctx, cancel := context.WithTimeout(ctx, c.config.Warmup+c.config.Measure)
	defer cancel()
	tr, err := c.download(dctx, i, c.config.Endpoints[i].URL, c.buffers[i])
	if err != nil && ctx.Err() == nil {
		tr.Err = err
		c.emitter.OnError(i, err)
	}
	c.agg.Attach(i, seq, tr)

	// A failed download leaves the rest of the window empty.
	if rest := start.Add(c.config.Warmup + c.config.Measure).Sub(c.now()); rest > 0 {
		sleep(ctx, rest)
	}
}

// sleep waits for d or until ctx is done. It reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
