package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ledger metrics
var (
	ContributionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossfund_contributions_recorded_total",
			Help: "Total number of contributions recorded by chain",
		},
		[]string{"chain"},
	)

	ContributionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossfund_contributions_rejected_total",
			Help: "Total number of contributions rejected by reason",
		},
		[]string{"reason"},
	)

	ContributionUSDVolume = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossfund_contribution_usd_total",
			Help: "Total USD value recorded by chain",
		},
		[]string{"chain"},
	)

	TrackedProjects = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossfund_tracked_projects",
		Help: "Number of projects held in the ledger",
	})
)

// Price oracle metrics
var (
	PriceFeedFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossfund_price_feed_failures_total",
			Help: "Total number of failed price feed calls by currency",
		},
		[]string{"currency"},
	)

	SnapshotRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossfund_price_snapshot_refreshes_total",
			Help: "Total number of snapshot refresh attempts by outcome",
		},
		[]string{"outcome"},
	)

	PriceFeedDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossfund_price_feed_duration_seconds",
		Help:    "Time taken by a single price feed call",
		Buckets: prometheus.DefBuckets,
	})
)

// Remote sync metrics
var (
	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossfund_persistence_failures_total",
			Help: "Total number of contributions that could not be persisted by reason",
		},
		[]string{"reason"},
	)

	ContributionsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossfund_contributions_persisted_total",
		Help: "Total number of contributions persisted to the backend",
	})

	OutboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossfund_outbox_depth",
		Help: "Number of contributions waiting to be persisted",
	})

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossfund_events_published_total",
			Help: "Total number of contribution events published by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)
)
