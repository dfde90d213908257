// Package metrics registers the Prometheus collectors of the upload service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultOK        = "ok"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
	ResultError     = "error"
	ResultReplay    = "replay"
	ResultRetry     = "retry"
	ResultFailed    = "failed"
)

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_upload_sessions_started_total",
		Help: "Upload sessions created.",
	})

	ChunksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_upload_chunks_received_total",
		Help: "Chunk receipts by result.",
	}, []string{"result"})

	ChunkBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_upload_chunk_bytes_total",
		Help: "Chunk bytes written to the chunk store.",
	})

	Completions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_upload_completions_total",
		Help: "Completion requests by result.",
	}, []string{"result"})

	AssemblyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "media_upload_assembly_duration_seconds",
		Help:    "Time spent merging chunks into the final object.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	OutboxPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_outbox_publishes_total",
		Help: "Outbox relay publish attempts by result.",
	}, []string{"result"})

	OrphansSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_orphan_files_swept_total",
		Help: "Pending files removed by the orphan sweeper.",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "media_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)
