package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	predicateHintFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltashare_predicate_hint_parse_failures_total",
			Help: "Total number of predicate hints dropped because they could not be parsed.",
		},
		[]string{"kind"},
	)
	filesKeptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deltashare_query_files_kept_total",
			Help: "Total number of data files returned by table queries.",
		},
	)
	filesPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deltashare_query_files_pruned_total",
			Help: "Total number of data files skipped by statistics pruning.",
		},
	)
	snapshotResolutionSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deltashare_snapshot_resolution_seconds",
			Help:    "Latency of resolving a table snapshot from its Delta log.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"mode", "outcome"},
	)
	signedURLsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltashare_signed_urls_total",
			Help: "Total number of pre-signed data file URLs issued.",
		},
		[]string{"platform"},
	)
)

func init() {
	prometheus.MustRegister(
		predicateHintFailuresTotal,
		filesKeptTotal,
		filesPrunedTotal,
		snapshotResolutionSeconds,
		signedURLsTotal,
	)
}

// IncrementHintParseFailure counts a dropped hint; kind is "sql" or "json".
func IncrementHintParseFailure(kind string) {
	predicateHintFailuresTotal.WithLabelValues(kind).Inc()
}

func ObservePruning(kept, pruned int) {
	if kept > 0 {
		filesKeptTotal.Add(float64(kept))
	}
	if pruned > 0 {
		filesPrunedTotal.Add(float64(pruned))
	}
}

func ObserveSnapshotResolution(mode, outcome string, elapsed time.Duration) {
	snapshotResolutionSeconds.WithLabelValues(mode, outcome).Observe(elapsed.Seconds())
}

func ObserveSignedURL(platform string) {
	signedURLsTotal.WithLabelValues(platform).Inc()
}
