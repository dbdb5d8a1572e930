package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the pipeline daemon.
type Metrics struct {
	QueueDepth        prometheus.Gauge
	JobsProcessed     *prometheus.CounterVec
	SegmentsProcessed *prometheus.CounterVec
	InferenceRequests *prometheus.CounterVec
	DeliveryErrors    *prometheus.CounterVec
	JobDuration       prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of jobs waiting in the processing queue.",
		}),
		JobsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Jobs by terminal outcome.",
		}, []string{"outcome"}),
		SegmentsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_processed_total",
			Help:      "Audio segments by processing status.",
		}, []string{"status"}),
		InferenceRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_requests_total",
			Help:      "Inference API calls by task and result code.",
		}, []string{"task", "code"}),
		DeliveryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_errors_total",
			Help:      "Chat delivery failures by operation.",
		}, []string{"op"}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "End-to-end job processing duration in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
	}
}

func (m *Metrics) ObserveJobDuration(d time.Duration) {
	m.JobDuration.Observe(d.Seconds())
}

// ServerMetrics groups Prometheus instruments used by whisperd.
type ServerMetrics struct {
	TranscribeRequests *prometheus.CounterVec
	AdmissionRejected  prometheus.Counter
	ModelEvents        *prometheus.CounterVec
	ModelLoaded        prometheus.Gauge
	InferenceDuration  prometheus.Histogram
}

func NewServerMetrics(namespace string) *ServerMetrics {
	return &ServerMetrics{
		TranscribeRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcribe_requests_total",
			Help:      "Transcription requests by task and result code.",
		}, []string{"task", "code"}),
		AdmissionRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejected_total",
			Help:      "Requests rejected by the free-VRAM admission check.",
		}),
		ModelEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_events_total",
			Help:      "Model lifecycle events by type.",
		}, []string{"event"}),
		ModelLoaded: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded",
			Help:      "1 while the speech model is resident, 0 otherwise.",
		}),
		InferenceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Single-segment inference duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
