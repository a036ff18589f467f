// Package handler implements the bulk-data endpoint served by
// speedmatrix-server.
package handler

import (
	"context"
	"crypto/rand"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/robertodauria/speedmatrix/internal/congestion"
	"github.com/robertodauria/speedmatrix/internal/netx"
	"github.com/robertodauria/speedmatrix/pkg/probe/spec"
	"go.uber.org/zap"
)

type connKey struct{}

// ConnContext stores the accepted connection in the request context. Set it
// as http.Server.ConnContext so that Download can tune the socket.
func ConnContext(ctx context.Context, c net.Conn) context.Context {
	return context.WithValue(ctx, connKey{}, c)
}

// Handler serves an endless stream of random bytes.
type Handler struct {
	cc         string
	maxRuntime time.Duration
}

// writeBadRequest sends a Bad Request response to the client using writer.
func writeBadRequest(writer http.ResponseWriter) {
	writer.Header().Set("Connection", "Close")
	writer.WriteHeader(http.StatusBadRequest)
}

// New creates a new Handler. cc is the congestion control algorithm set on
// every connection; congestion.Default keeps the system's.
func New(cc string) *Handler {
	return &Handler{
		cc:         cc,
		maxRuntime: spec.MaxRuntime,
	}
}

// Download streams random data until the optional bytes=N limit is reached,
// the client goes away, or the maximum runtime elapses.
func (h *Handler) Download(rw http.ResponseWriter, req *http.Request) {
	limit := noLimit
	if v := req.URL.Query().Get("bytes"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			zap.L().Sugar().Infow("Received request with invalid byte limit",
				"url", req.URL.String(),
				"client", req.RemoteAddr)
			writeBadRequest(rw)
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(req.Context(), h.maxRuntime)
	defer cancel()

	flow := h.tune(req)

	rw.Header().Set("Content-Type", "application/octet-stream")
	rw.Header().Set("Cache-Control", "no-store")
	if limit != noLimit {
		rw.Header().Set("Content-Length", strconv.FormatInt(limit, 10))
	}
	rw.WriteHeader(http.StatusOK)

	start := time.Now()
	sent, err := send(ctx, rw, limit)
	zap.L().Sugar().Debugw("Download done",
		"client", req.RemoteAddr,
		"flow", flow,
		"bytes", sent,
		"elapsed", time.Since(start),
		"err", err)
}

// tune sets the congestion control algorithm on the request's connection and
// returns its flow id, if the connection is available.
func (h *Handler) tune(req *http.Request) string {
	c, _ := req.Context().Value(connKey{}).(net.Conn)
	tc, err := netx.ToTCPConn(c)
	if err != nil {
		return ""
	}
	if err := congestion.Set(tc, h.cc); err != nil {
		zap.L().Sugar().Warnw("Cannot set congestion control", "cc", h.cc, "err", err)
	}
	id, err := netx.FlowID(tc)
	if err != nil {
		return ""
	}
	return id
}

func makeChunk(size int) ([]byte, error) {
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		return nil, err
	}
	return data, nil
}

var errLimitReached = errors.New("byte limit reached")

// noLimit makes send stream until ctx is done.
const noLimit int64 = -1

// send writes chunks to w until ctx is done, a write fails, or limit bytes
// were written. A zero limit writes nothing. The chunk size starts at
// spec.MinChunkSize and doubles while it is below 1/spec.ScalingFraction of
// the bytes sent so far.
func send(ctx context.Context, w http.ResponseWriter, limit int64) (int64, error) {
	size := spec.MinChunkSize
	chunk, err := makeChunk(size)
	if err != nil {
		return 0, err
	}
	var sent int64
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		n := int64(size)
		if limit != noLimit {
			if sent >= limit {
				return sent, errLimitReached
			}
			if remaining := limit - sent; remaining < n {
				n = remaining
			}
		}
		written, err := w.Write(chunk[:n])
		sent += int64(written)
		if err != nil {
			return sent, err
		}

		if size >= spec.MaxChunkSize || int64(size) >= sent/spec.ScalingFraction {
			continue
		}
		size <<= 1
		if chunk, err = makeChunk(size); err != nil {
			return sent, err
		}
	}
}
