package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LaunchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "training_launches_total",
		Help: "Total number of sandbox launch attempts by outcome.",
	}, []string{"outcome"})
	ContainersRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "training_containers_running",
		Help: "Number of sandbox containers currently running.",
	})
	StopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "training_stops_total",
		Help: "Total number of sandbox stops by reason.",
	}, []string{"reason"})
	BuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "training_builds_total",
		Help: "Total number of exercise image builds by outcome.",
	}, []string{"outcome"})
	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "training_build_duration_seconds",
		Help:    "Duration of exercise image builds.",
		Buckets: prometheus.DefBuckets,
	})
	ProxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "training_proxy_requests_total",
		Help: "Total number of proxied sandbox requests by status class.",
	}, []string{"code_class"})
	ProxyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "training_proxy_duration_seconds",
		Help:    "Duration of proxied sandbox requests.",
		Buckets: prometheus.DefBuckets,
	})
	ReconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "training_reconcile_runs_total",
		Help: "Total number of reconciliation runs.",
	})
	ReconcileOrphansRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "training_reconcile_orphans_removed_total",
		Help: "Total number of orphaned runtime containers removed by reconciliation.",
	})
)
