// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EnrichmentFallbacks counts read-time substitutions of a staging SMS
	// balance for a zero internal value. Sustained growth here means the
	// reconciliation is dropping the balance column somewhere.
	EnrichmentFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "licadmin",
		Name:      "enrichment_fallback_total",
		Help:      "Read-time SMS balance substitutions from the staging table.",
	})

	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "licadmin",
		Name:      "sync_runs_total",
		Help:      "Completed sync runs by outcome.",
	}, []string{"result"})

	SyncRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "licadmin",
		Name:      "sync_records_total",
		Help:      "Provider records processed per pipeline stage.",
	}, []string{"stage"})

	SyncRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "licadmin",
		Name:      "sync_running",
		Help:      "1 while a sync run holds the mutual exclusion window.",
	})

	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "licadmin",
		Name:      "sync_duration_seconds",
		Help:      "Wall time of complete sync runs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)
