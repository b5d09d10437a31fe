// Package metrics provides Prometheus metrics for the matching service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicketsEnqueued counts tickets created by enqueue. Idempotent repeats are not counted.
	TicketsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pairprep",
			Subsystem: "matching",
			Name:      "tickets_enqueued_total",
			Help:      "Total number of tickets created",
		},
	)

	// PairsCreated counts committed pairings by the mode that found them
	PairsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairprep",
			Subsystem: "matching",
			Name:      "pairs_created_total",
			Help:      "Total number of pairs created by matching mode",
		},
		[]string{"mode"},
	)

	PairingConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pairprep",
			Subsystem: "matching",
			Name:      "pairing_conflicts_total",
			Help:      "Total number of pairing transactions lost to a concurrent change",
		},
	)

	// TicketsRetired counts tickets moved out of the queue by cleanup or cancel
	TicketsRetired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairprep",
			Subsystem: "matching",
			Name:      "tickets_retired_total",
			Help:      "Total number of tickets that left the queue without a match, by status",
		},
		[]string{"status"},
	)

	Recoveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairprep",
			Subsystem: "matching",
			Name:      "recoveries_total",
			Help:      "Total number of matched tickets cancelled with partner recovery, by partner outcome",
		},
		[]string{"partner"},
	)

	SessionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pairprep",
			Subsystem: "matching",
			Name:      "session_failures_total",
			Help:      "Total number of collaboration sessions that could not be created",
		},
	)

	// MatchDuration tracks how long a tryMatch or relax call spends matching
	MatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pairprep",
			Subsystem: "matching",
			Name:      "match_duration_seconds",
			Help:      "Duration of match attempts in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"outcome"},
	)
)
