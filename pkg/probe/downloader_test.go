package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/robertodauria/speedmatrix/internal/congestion"
	"github.com/robertodauria/speedmatrix/internal/handler"
	"github.com/robertodauria/speedmatrix/pkg/probe/samples"
	"github.com/robertodauria/speedmatrix/pkg/probe/spec"
)

// fakeClock advances by step on every reading.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func newBulkServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(spec.DownloadPath, handler.New(congestion.Default).Download)
	ts := httptest.NewUnstartedServer(mux)
	ts.Config.ConnContext = handler.ConnContext
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

func TestDownloaderRecordsOnlyTheWindow(t *testing.T) {
	ts := newBulkServer(t)
	d := NewDownloader(2*time.Second, 3*time.Second, "speedmatrix-test")
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0), step: time.Second}
	d.now = clock.Now

	buf := &samples.Buffer{}
	tr, err := d.Run(context.Background(), 4, ts.URL+spec.DownloadPath, buf)
	if err != nil {
		t.Fatalf("Run returned %v", err)
	}
	// start=0s; reads at 1s, 2s, 3s, 4s, 5s: 1s is warm-up, 5s closes.
	got := buf.Drain()
	if len(got) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(got))
	}
	for _, s := range got {
		if s.Endpoint != 4 {
			t.Errorf("sample tagged with endpoint %d", s.Endpoint)
		}
	}
	if tr.Bytes != samples.Sum(got) {
		t.Errorf("transfer bytes %d != sampled bytes %d", tr.Bytes, samples.Sum(got))
	}
	if tr.FlowID == "" {
		t.Errorf("missing flow id")
	}
}

func TestDownloaderShortResponse(t *testing.T) {
	ts := newBulkServer(t)
	d := NewDownloader(0, time.Hour, "")

	buf := &samples.Buffer{}
	tr, err := d.Run(context.Background(), 0, ts.URL+spec.DownloadPath+"?bytes=100000", buf)
	if !errors.Is(err, ErrShortResponse) {
		t.Fatalf("expected ErrShortResponse, got %v", err)
	}
	if tr.Bytes != 100000 || samples.Sum(buf.Drain()) != 100000 {
		t.Errorf("bytes before the failure were not kept: %d", tr.Bytes)
	}
}

func TestDownloaderBadStatus(t *testing.T) {
	ts := newBulkServer(t)
	d := NewDownloader(0, time.Second, "")

	buf := &samples.Buffer{}
	_, err := d.Run(context.Background(), 0, ts.URL+"/missing", buf)
	if !errors.Is(err, ErrBadStatus) {
		t.Fatalf("expected ErrBadStatus, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("samples appended for a failed response")
	}
}

func TestDownloaderDeadlineIsNotAnError(t *testing.T) {
	stall := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-stall:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(stall)

	d := NewDownloader(50*time.Millisecond, 100*time.Millisecond, "")
	_, err := d.Run(context.Background(), 0, ts.URL, &samples.Buffer{})
	if err != nil {
		t.Fatalf("a stalled stream at window close should not fail, got %v", err)
	}
}

func TestDownloaderCancel(t *testing.T) {
	ts := newBulkServer(t)
	d := NewDownloader(0, time.Hour, "")

	ctx, cancel := context.WithCancel(context.Background())
	buf := &samples.Buffer{}
	done := make(chan error, 1)
	go func() {
		_, err := d.Run(ctx, 0, ts.URL+spec.DownloadPath, buf)
		done <- err
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	buf.Drain()
	time.Sleep(50 * time.Millisecond)
	if buf.Len() != 0 {
		t.Errorf("samples appended after cancellation")
	}
}

func TestDownloaderKeepsTCPInfoAtDeadline(t *testing.T) {
	ts := newBulkServer(t)
	d := NewDownloader(20*time.Millisecond, 80*time.Millisecond, "")

	for i := 0; i < 4; i++ {
		// The caller's deadline matches the window, as in a client cycle.
		ctx, cancel := context.WithTimeout(context.Background(), d.Warmup+d.Measure)
		tr, err := d.Run(ctx, 0, ts.URL+spec.DownloadPath, &samples.Buffer{})
		cancel()
		if err != nil {
			t.Fatalf("run %d returned %v", i, err)
		}
		if runtime.GOOS == "linux" && tr.RTT <= 0 {
			t.Errorf("run %d: RTT = %v, want the last kernel snapshot", i, tr.RTT)
		}
	}
}
