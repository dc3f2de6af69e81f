// Package metrics exposes Prometheus collectors for the job pipeline. The
// daemon serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mediaforge"

var (
	// JobsSubmitted counts accepted submissions per kind.
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Total jobs accepted for processing",
		},
		[]string{"kind"},
	)

	// JobsFinished counts terminal outcomes per kind and status.
	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Total jobs that reached a terminal status",
		},
		[]string{"kind", "status"},
	)

	// JobDuration measures claim-to-terminal time.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Job execution time in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"kind"},
	)

	// EngineDuration measures transform engine invocations.
	EngineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "duration_seconds",
			Help:      "Transform engine run time in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"kind", "status"},
	)

	// WorkersBusy is the number of workers executing a unit.
	WorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workers",
			Name:      "busy",
			Help:      "Workers currently executing a work unit",
		},
	)

	// QueueDepth reports work units by state.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Work units by dispatch state",
		},
		[]string{"state"},
	)

	// UnitsReclaimed counts units returned to the queue after missed heartbeats.
	UnitsReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "reclaimed_total",
			Help:      "Work units requeued after their worker stopped heart-beating",
		},
	)

	// RequestsTotal counts API requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration measures API request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "route"},
	)

	// UploadBytes counts bytes copied into the media directory.
	UploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uploads",
			Name:      "bytes_total",
			Help:      "Total bytes uploaded",
		},
		[]string{"content_type"},
	)
)

// RecordSubmission records an accepted job.
func RecordSubmission(kind string) {
	JobsSubmitted.WithLabelValues(kind).Inc()
}

// RecordJob records a job reaching status after durationSec.
func RecordJob(kind, status string, durationSec float64) {
	JobsFinished.WithLabelValues(kind, status).Inc()
	JobDuration.WithLabelValues(kind).Observe(durationSec)
}

// RecordEngine records one engine run.
func RecordEngine(kind, status string, durationSec float64) {
	EngineDuration.WithLabelValues(kind, status).Observe(durationSec)
}

// RecordQueue sets the queue depth gauges.
func RecordQueue(queued, claimed int) {
	QueueDepth.WithLabelValues("queued").Set(float64(queued))
	QueueDepth.WithLabelValues("claimed").Set(float64(claimed))
}

// RecordReclaimed adds n reclaimed units.
func RecordReclaimed(n int64) {
	if n > 0 {
		UnitsReclaimed.Add(float64(n))
	}
}

// RecordRequest records an HTTP request.
func RecordRequest(method, route, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, route, status).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(durationSec)
}

// RecordUpload records an upload of the sniffed content type.
func RecordUpload(contentType string, bytes int64) {
	UploadBytes.WithLabelValues(contentType).Add(float64(bytes))
}
