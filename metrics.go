package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcome labels for the requests counter.
const (
	statusSuccess       = "success"
	statusErrorFormat   = "error_format"
	statusErrorSize     = "error_size"
	statusErrorDecode   = "error_decode"
	statusErrorInternal = "error_internal"
)

// Metrics holds the service's Prometheus collectors on a private registry so
// tests can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	Requests         *prometheus.CounterVec
	InferenceLatency prometheus.Histogram
	DetectionCount   prometheus.Histogram
	InFlight         prometheus.Gauge
	ModelInfo        *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfwatch_requests_total",
			Help: "Total inference requests",
		}, []string{"status"}),
		InferenceLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shelfwatch_inference_seconds",
			Help:    "Model inference latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.15, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
		}),
		DetectionCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shelfwatch_detections_per_image",
			Help:    "Number of detections per image",
			Buckets: []float64{0, 10, 25, 50, 100, 150, 200, 300, 500},
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shelfwatch_in_flight_requests",
			Help: "Number of currently processing requests",
		}),
		ModelInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shelfwatch_model_info",
			Help: "Model metadata",
		}, []string{"model_name", "weights_path", "runtime"}),
	}

	m.registry.MustRegister(
		m.Requests,
		m.InferenceLatency,
		m.DetectionCount,
		m.InFlight,
		m.ModelInfo,
	)
	return m
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
