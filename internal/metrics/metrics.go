package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracktide_tasks_enqueued_total",
		Help: "Total number of download tasks enqueued",
	})

	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracktide_tasks_completed_total",
		Help: "Total number of download tasks completed",
	})

	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracktide_tasks_failed_total",
		Help: "Total number of download tasks permanently failed",
	})

	TasksCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracktide_tasks_cancelled_total",
		Help: "Total number of download tasks cancelled",
	})

	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracktide_retries_total",
		Help: "Total number of retry re-enqueues after transient failures",
	})

	BatchesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracktide_batches_enqueued_total",
		Help: "Total number of batches enqueued",
	})

	DownloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracktide_download_bytes_total",
		Help: "Total plaintext bytes written by completed downloads",
	})

	DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracktide_download_duration_seconds",
		Help:    "Wall time of successful download attempts in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)
