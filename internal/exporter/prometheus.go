package exporter

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	registry *prometheus.Registry
	instant  *prometheus.GaugeVec
	average  *prometheus.GaugeVec
	smoothed *prometheus.GaugeVec
	received *prometheus.CounterVec
	cycles   *prometheus.CounterVec
}

// newMetrics uses a private registry, so several Servers can coexist.
func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		instant: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "speedmatrix_instant_rate_bytes",
				Help: "Download rate of the last tick, in bytes per second",
			},
			[]string{"endpoint"},
		),
		average: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "speedmatrix_average_rate_bytes",
				Help: "Average download rate of the last completed cycle, in bytes per second",
			},
			[]string{"endpoint"},
		),
		smoothed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "speedmatrix_smoothed_rate_bytes",
				Help: "Moving average of cycle averages, in bytes per second",
			},
			[]string{"endpoint"},
		),
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedmatrix_received_bytes_total",
				Help: "Bytes received inside measurement windows",
			},
			[]string{"endpoint"},
		),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedmatrix_cycles_total",
				Help: "Completed probe cycles",
			},
			[]string{"endpoint", "result"},
		),
	}
	m.registry.MustRegister(m.instant, m.average, m.smoothed, m.received, m.cycles)
	return m
}
