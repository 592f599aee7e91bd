package clmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VisitsTracked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "haultrack",
		Name:      "visits_tracked_total",
		Help:      "Visit beacons resolved, by outcome (created or existing).",
	}, []string{"outcome"})

	PageViewsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "haultrack",
		Name:      "page_views_recorded_total",
		Help:      "Page views opened.",
	})

	PageViewsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "haultrack",
		Name:      "page_views_closed_total",
		Help:      "Page view close beacons, by outcome (closed, duplicate, unknown).",
	}, []string{"outcome"})

	EnrichmentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "haultrack",
		Name:      "enrichment_failures_total",
		Help:      "IP intelligence lookups that failed or timed out.",
	})

	CompetitorVisits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "haultrack",
		Name:      "competitor_visitors_total",
		Help:      "New visitors matched to a competitor range.",
	}, []string{"threat_level"})

	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "haultrack",
		Name:      "alerts_fired_total",
		Help:      "Alerts emitted by the rule evaluator.",
	}, []string{"severity"})

	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "haultrack",
		Name:      "alert_dispatch_failures_total",
		Help:      "Notification sink failures, by channel.",
	}, []string{"channel"})

	SummaryStale = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "haultrack",
		Name:      "summary_stale_total",
		Help:      "Dashboard summaries served from cache after a query failure.",
	})
)
