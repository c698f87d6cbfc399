// Package metrics holds the write buffer's prometheus instrumentation:
// promauto counter/histogram vectors for the write path, the WAL, and
// the query entry points.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WriteLinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writebuf_write_lines_total",
			Help: "Total number of write_lines calls",
		},
		[]string{"status"},
	)

	WriteLinesDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "writebuf_write_lines_duration_seconds",
			Help:    "Duration of write_lines calls",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
	)

	WalAppendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writebuf_wal_append_total",
			Help: "Total number of WAL write_and_sync calls",
		},
		[]string{"status"},
	)

	WalAppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "writebuf_wal_append_duration_seconds",
			Help:    "Duration of WAL write_and_sync calls",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
	)

	QueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writebuf_query_total",
			Help: "Total number of query/metadata-listing calls",
		},
		[]string{"kind", "status"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "writebuf_query_duration_seconds",
			Help:    "Duration of query/metadata-listing calls",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
		[]string{"kind"},
	)

	PartitionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "writebuf_partitions",
			Help: "Current number of in-memory partitions",
		},
	)

	RestoreRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "writebuf_restore_rows_total",
			Help: "Total number of rows reconstructed from the WAL, summed over every restore in this process",
		},
	)
)
