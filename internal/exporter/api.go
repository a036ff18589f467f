// Package exporter publishes the state of a run over HTTP: a JSON snapshot,
// a WebSocket feed of cells and Prometheus metrics.
package exporter

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertodauria/speedmatrix/client/config"
	"github.com/robertodauria/speedmatrix/pkg/probe"
	"github.com/robertodauria/speedmatrix/pkg/probe/spec"
	"go.uber.org/zap"
)

type endpointStatus struct {
	Index     int     `json:"index"`
	Name      string  `json:"name"`
	URL       string  `json:"url"`
	Slot      int     `json:"slot"`
	Instant   float64 `json:"instant"`
	Average   float64 `json:"average"`
	Smoothed  float64 `json:"smoothed"`
	P50       float64 `json:"p50"`
	P90       float64 `json:"p90"`
	Cycles    int     `json:"cycles"`
	Failures  int     `json:"failures"`
	LastError string  `json:"last_error,omitempty"`
	FlowID    string  `json:"flow_id,omitempty"`
	RTTMillis float64 `json:"rtt_ms,omitempty"`
	Updated   string  `json:"updated,omitempty"`
}

// Server is an emitter.Emitter that serves what it observes.
type Server struct {
	mu     sync.RWMutex
	status []endpointStatus

	metrics *metrics
	hub     *hub
	engine  *gin.Engine
}

// New returns a Server for endpoints.
func New(endpoints []config.Endpoint) *Server {
	s := &Server{
		status:  make([]endpointStatus, len(endpoints)),
		metrics: newMetrics(),
		hub:     newHub(),
	}
	for i, ep := range endpoints {
		s.status[i] = endpointStatus{Index: i, Name: ep.Name, URL: ep.URL}
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/v1/endpoints", s.handleGetEndpoints)
	r.GET("/v1/endpoints/:index", s.handleGetEndpoint)
	r.GET(spec.LivePath, s.handleLive)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))
	s.engine = r
	return s
}

// Handler returns the HTTP handler of the status API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.closeAll()
		if err := srv.Shutdown(shutdown); err != nil {
			zap.L().Sugar().Warnw("Status server shutdown failed", "err", err)
		}
	}()
	zap.L().Sugar().Infow("Serving status API", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleGetEndpoints(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	response := make([]endpointStatus, len(s.status))
	copy(response, s.status)
	c.JSON(http.StatusOK, gin.H{"endpoints": response})
}

type indexParam struct {
	Index int `uri:"index" binding:"min=0"`
}

func (s *Server) handleGetEndpoint(c *gin.Context) {
	var p indexParam
	if err := c.ShouldBindUri(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endpoint index"})
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p.Index >= len(s.status) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
		return
	}
	c.JSON(http.StatusOK, s.status[p.Index])
}

func (s *Server) update(i int, f func(*endpointStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.status) {
		return
	}
	f(&s.status[i])
	s.status[i].Updated = time.Now().UTC().Format(time.RFC3339)
}

func (s *Server) name(i int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.status) {
		return ""
	}
	return s.status[i].Name
}

func (s *Server) OnStart(c probe.Cycle) {
	s.update(c.Endpoint, func(st *endpointStatus) {
		st.Slot = c.Slot
	})
}

func (s *Server) OnMeasurement(r probe.Row) {
	name := s.name(r.Endpoint)
	if r.Kind == probe.Instant {
		s.update(r.Endpoint, func(st *endpointStatus) {
			st.Instant = r.Rate
		})
		s.metrics.instant.WithLabelValues(name).Set(r.Rate)
		s.metrics.received.WithLabelValues(name).Add(float64(r.Bytes))
	}
	s.hub.broadcast(liveMessage{
		Kind:     r.Kind.String(),
		Endpoint: r.Endpoint,
		Name:     name,
		Slot:     r.Slot,
		Rate:     r.Rate,
		Bytes:    r.Bytes,
		Time:     r.Time.UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) OnComplete(sum probe.Summary) {
	name := s.name(sum.Endpoint)
	s.update(sum.Endpoint, func(st *endpointStatus) {
		st.Average = sum.Average
		st.Smoothed = sum.Smoothed
		st.P50 = sum.P50
		st.P90 = sum.P90
		st.Cycles++
		st.FlowID = sum.Transfer.FlowID
		st.RTTMillis = float64(sum.Transfer.RTT) / float64(time.Millisecond)
	})
	s.metrics.average.WithLabelValues(name).Set(sum.Average)
	s.metrics.smoothed.WithLabelValues(name).Set(sum.Smoothed)
	result := "ok"
	if sum.Transfer.Err != nil {
		result = "error"
	}
	s.metrics.cycles.WithLabelValues(name, result).Inc()
	s.hub.broadcast(liveMessage{
		Kind:     "summary",
		Endpoint: sum.Endpoint,
		Name:     name,
		Slot:     sum.Slot,
		Rate:     sum.Average,
		Bytes:    sum.Bytes,
		Time:     sum.Start.UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) OnError(endpoint int, err error) {
	s.update(endpoint, func(st *endpointStatus) {
		st.Failures++
		st.LastError = err.Error()
	})
}
