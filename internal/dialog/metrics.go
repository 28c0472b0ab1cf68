package dialog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTurns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialog_turns_total",
		Help: "Total turns processed",
	})

	metricTurnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dialog_turn_latency_ms",
		Help:    "Turn handling latency",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialog_state_transitions_total",
		Help: "Dialogue state transitions",
	}, []string{"from", "to"})

	metricClassifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialog_classifications_total",
		Help: "Input classifications by kind",
	}, []string{"kind"})

	metricEscalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialog_escalations_total",
		Help: "Recovery escalations by context",
	}, []string{"context"})

	metricTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialog_transfers_total",
		Help: "Transfers to a human by reason",
	}, []string{"reason"})

	metricStrongOverrides = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialog_strong_overrides_total",
		Help: "Strong-intent overrides by intent",
	}, []string{"intent"})

	metricCalendarOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialog_calendar_commits_total",
		Help: "Calendar commit outcomes",
	}, []string{"outcome"})

	metricAntiLoop = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialog_anti_loop_total",
		Help: "Anti-loop ceiling escalations",
	})

	metricLockTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialog_lock_timeouts_total",
		Help: "Session lock acquisition timeouts",
	})
)
