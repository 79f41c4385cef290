// Package metrics holds the Prometheus collectors for the linking pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts pipeline runs by outcome ("committed", "dry_run", "aborted").
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crosslink_runs_total",
		Help: "Total linking runs by outcome",
	}, []string{"outcome"})

	// RunDuration tracks wall time of a full run.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crosslink_run_duration_seconds",
		Help:    "Linking run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	})

	// CandidatesTotal counts candidate links by filter decision.
	CandidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crosslink_candidates_total",
		Help: "Total candidate links by filter decision",
	}, []string{"decision"}) // "accepted" or a rejection reason

	// DocumentFaults counts documents skipped or aborting a run, by kind.
	DocumentFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crosslink_document_faults_total",
		Help: "Total per-document faults by kind",
	}, []string{"kind"})

	// DocumentsWritten counts documents rewritten on disk.
	DocumentsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crosslink_documents_written_total",
		Help: "Total documents rewritten during commit",
	})

	// DistanceCacheHits counts distance-table lookups served from cache.
	DistanceCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crosslink_distance_cache_hits_total",
		Help: "Total relevance distance lookups served from the per-run cache",
	})

	// DistanceCacheMisses counts distance tables computed by BFS.
	DistanceCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crosslink_distance_cache_misses_total",
		Help: "Total relevance distance tables computed",
	})

	// EventsDropped counts SSE frames not delivered to a slow client.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crosslink_events_dropped_total",
		Help: "Total server-sent event frames dropped for slow clients",
	})
)
