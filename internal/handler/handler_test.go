package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/m-lab/go/testingx"
	"github.com/robertodauria/speedmatrix/internal/congestion"
	"github.com/robertodauria/speedmatrix/pkg/probe/spec"
)

func newServer(t *testing.T, h *Handler) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(spec.DownloadPath, h.Download)
	ts := httptest.NewUnstartedServer(mux)
	ts.Config.ConnContext = ConnContext
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

func TestDownloadHonorsByteLimit(t *testing.T) {
	ts := newServer(t, New(congestion.Default))

	for _, n := range []int{1, 1000, 3 << 20} {
		resp, err := http.Get(ts.URL + spec.DownloadPath + "?bytes=" + strconv.Itoa(n))
		testingx.Must(t, err, "GET failed")
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		testingx.Must(t, err, "reading body failed")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if len(body) != n {
			t.Errorf("bytes=%d: received %d bytes", n, len(body))
		}
	}
}

func TestDownloadRejectsInvalidLimit(t *testing.T) {
	ts := newServer(t, New(congestion.Default))
	for _, q := range []string{"abc", "-5"} {
		resp, err := http.Get(ts.URL + spec.DownloadPath + "?bytes=" + q)
		testingx.Must(t, err, "GET failed")
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("bytes=%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestDownloadZeroLimitIsEmpty(t *testing.T) {
	h := New(congestion.Default)
	h.maxRuntime = 5 * time.Second
	ts := newServer(t, h)

	resp, err := http.Get(ts.URL + spec.DownloadPath + "?bytes=0")
	testingx.Must(t, err, "GET failed")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.ContentLength != 0 {
		t.Errorf("Content-Length = %d, want 0", resp.ContentLength)
	}
	body, err := io.ReadAll(resp.Body)
	testingx.Must(t, err, "reading body failed")
	if len(body) != 0 {
		t.Errorf("received %d bytes, want none", len(body))
	}
}

func TestDownloadWriteDeadlineSurvivesTuning(t *testing.T) {
	h := New(congestion.Default)
	handled := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc(spec.DownloadPath, func(rw http.ResponseWriter, req *http.Request) {
		defer close(handled)
		h.Download(rw, req)
	})
	ts := httptest.NewUnstartedServer(mux)
	ts.Config.ConnContext = ConnContext
	ts.Config.WriteTimeout = 300 * time.Millisecond
	ts.Start()
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + spec.DownloadPath)
	testingx.Must(t, err, "GET failed")
	defer resp.Body.Close()
	_, err = io.ReadFull(resp.Body, make([]byte, 1024))
	testingx.Must(t, err, "reading body failed")

	// Stop reading: the server's writes block until the write deadline.
	select {
	case <-handled:
	case <-time.After(10 * time.Second):
		t.Fatal("handler blocked past the server's write timeout")
	}
}

func TestDownloadStopsAtMaxRuntime(t *testing.T) {
	h := New(congestion.Default)
	h.maxRuntime = 200 * time.Millisecond
	ts := newServer(t, h)

	done := make(chan error, 1)
	go func() {
		resp, err := http.Get(ts.URL + spec.DownloadPath)
		if err != nil {
			done <- err
			return
		}
		defer resp.Body.Close()
		_, err = io.Copy(io.Discard, resp.Body)
		done <- err
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("unlimited download did not stop at the maximum runtime")
	}
}

func TestDownloadStopsWhenClientLeaves(t *testing.T) {
	ts := newServer(t, New(congestion.Default))
	resp, err := http.Get(ts.URL + spec.DownloadPath)
	testingx.Must(t, err, "GET failed")
	buf := make([]byte, 64<<10)
	_, err = io.ReadFull(resp.Body, buf)
	testingx.Must(t, err, "reading body failed")
	// Close must not hang on an endless body.
	resp.Body.Close()
}
