package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/m-lab/go/warnonerror"
	"github.com/robertodauria/speedmatrix/internal/netx"
	"github.com/robertodauria/speedmatrix/internal/tcpinfox"
	"github.com/robertodauria/speedmatrix/pkg/probe/samples"
	"github.com/robertodauria/speedmatrix/pkg/probe/spec"
)

var (
	// ErrShortResponse is returned when the body ends before the
	// measurement window closes.
	ErrShortResponse = errors.New("response ended before the measurement window closed")

	// ErrBadStatus is returned for non-2xx responses.
	ErrBadStatus = errors.New("unexpected HTTP status")
)

// inspectInterval throttles TCP_INFO snapshots taken on reads.
const inspectInterval = 100 * time.Millisecond

// Transfer describes what a Downloader observed during one cycle.
type Transfer struct {
	// FlowID identifies the TCP flow. Empty when unavailable.
	FlowID string
	// Bytes counted inside the measurement window.
	Bytes int64
	// Latest kernel view of the connection, refreshed while data arrives.
	// Zero when TCP_INFO is unavailable.
	RTT         time.Duration
	MinRTT      time.Duration
	Retransmits int64
	Err         error
}

// Downloader streams an endpoint's payload and records the chunks received
// inside the measurement window [Warmup, Warmup+Measure).
type Downloader struct {
	Warmup    time.Duration
	Measure   time.Duration
	UserAgent string

	client *http.Client
	now    func() time.Time
}

// NewDownloader returns a Downloader whose requests always open a fresh
// connection.
func NewDownloader(warmup, measure time.Duration, userAgent string) *Downloader {
	return &Downloader{
		Warmup:    warmup,
		Measure:   measure,
		UserAgent: userAgent,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				DisableKeepAlives:   true,
				// Count bytes as they come off the wire.
				DisableCompression: true,
			},
		},
		now: time.Now,
	}
}

// Run downloads url and appends one Sample to buf for every chunk received
// inside the measurement window. It returns when the window closes, when the
// response fails or ends, or when ctx is canceled. Closing the window is not
// an error.
//
// No sample is appended once ctx is done.
func (d *Downloader) Run(ctx context.Context, endpoint int, url string, buf *samples.Buffer) (Transfer, error) {
	var tr Transfer
	window := d.Warmup + d.Measure
	start := d.now()

	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	conns := make(chan net.Conn, 1)
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			select {
			case conns <- info.Conn:
			default:
			}
		},
	}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, url, nil)
	if err != nil {
		return tr, err
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return tr, err
	}
	defer warnonerror.Close(resp.Body, "probe: ignoring body close error")

	var conn net.Conn
	select {
	case conn = <-conns:
	default:
	}
	tc, _ := netx.ToTCPConn(conn)
	if id, err := netx.FlowID(conn); err == nil {
		tr.FlowID = id
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return tr, fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
	}

	p := make([]byte, spec.ReadBufferSize)
	var inspected time.Time
	for {
		n, err := resp.Body.Read(p)
		if n > 0 {
			now := d.now()
			elapsed := now.Sub(start)
			if elapsed >= window {
				inspect(tc, &tr)
				return tr, nil
			}
			if now.Sub(inspected) >= inspectInterval {
				inspect(tc, &tr)
				inspected = now
			}
			if elapsed >= d.Warmup && ctx.Err() == nil {
				buf.Append(samples.Sample{Endpoint: endpoint, Time: now, Bytes: n})
				tr.Bytes += int64(n)
			}
		}
		if err == nil {
			continue
		}
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			// The window closed while waiting for data.
			return tr, nil
		case ctx.Err() != nil:
			return tr, ctx.Err()
		case err == io.EOF:
			return tr, ErrShortResponse
		default:
			return tr, err
		}
	}
}

// inspect copies the connection's TCP_INFO into tr. A failed read keeps the
// previous snapshot.
func inspect(tc *net.TCPConn, tr *Transfer) {
	if tc == nil {
		return
	}
	info, err := tcpinfox.GetTCPInfo(tc)
	if err != nil {
		return
	}
	// The kernel reports RTTs in microseconds.
	tr.RTT = time.Duration(info.RTT) * time.Microsecond
	tr.MinRTT = time.Duration(info.MinRTT) * time.Microsecond
	tr.Retransmits = int64(info.TotalRetrans)
}
