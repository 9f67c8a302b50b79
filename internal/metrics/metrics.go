package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Admissions counts candidates by origin and terminal outcome (posted, pending_review, duplicate, ...).
	Admissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "announce_relay_admissions_total",
			Help: "Candidates seen by the pipeline, by origin and outcome.",
		},
		[]string{"origin", "outcome"},
	)
	// Deliveries counts per-destination delivery attempts.
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "announce_relay_dispatch_total",
			Help: "Per-destination delivery attempts by platform and result.",
		},
		[]string{"platform", "result"},
	)
	// GenerationDuration observes text-generation latency.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "announce_relay_generation_seconds",
			Help:    "Duration of text-generation calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 6, 8, 10, 15},
		},
		[]string{"result"},
	)
	// PendingApprovals tracks the size of the approval ledger.
	PendingApprovals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "announce_relay_pending_approvals",
		Help: "Approval ledger entries awaiting an operator decision.",
	})
	// SchedulerTicks counts autonomous ticks by what they did.
	SchedulerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "announce_relay_scheduler_ticks_total",
			Help: "Autonomous scheduler ticks by result.",
		},
		[]string{"result"},
	)
)
