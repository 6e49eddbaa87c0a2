package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snaplabel_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "snaplabel_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)

	ModelDownloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snaplabel_model_downloads_total",
			Help: "Number of model artifact downloads",
		},
	)

	Predictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snaplabel_predictions_total",
			Help: "Classifications by predicted label",
		},
		[]string{"label"},
	)

	InferenceLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "snaplabel_inference_latency_seconds",
			Help: "Preprocess plus forward pass latency in seconds",
		},
	)

	DecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snaplabel_decode_failures_total",
			Help: "Submitted images that could not be decoded",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snaplabel_active_sessions",
			Help: "Number of live browser sessions",
		},
	)
)
