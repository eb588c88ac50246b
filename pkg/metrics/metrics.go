package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters.
var (
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "companion_messages_processed_total",
		Help: "Inbound messages processed, by outcome (ok, crisis, limited, error).",
	}, []string{"outcome"})

	CrisisIncidents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "companion_crisis_incidents_total",
		Help: "Crisis incidents detected, by category and severity.",
	}, []string{"category", "severity"})

	RoutingDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "companion_routing_decisions_total",
		Help: "Routing decisions, by capability and whether the default fallback was used.",
	}, []string{"capability", "fallback"})

	EventsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "companion_events_extracted_total",
		Help: "Dated events extracted from user messages.",
	})
)

// Scheduler metrics.
var (
	FollowupTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "companion_followup_transitions_total",
		Help: "Scheduled follow-up state transitions, by target state.",
	}, []string{"state"})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "companion_scheduler_tick_seconds",
		Help:    "Duration of one scheduler tick.",
		Buckets: prometheus.DefBuckets,
	})
)
