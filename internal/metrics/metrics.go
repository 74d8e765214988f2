package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesPaired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_matches_paired_total",
		Help: "Pairs formed by the matcher.",
	})
	MatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_match_failures_total",
		Help: "Pairs dropped because the mirror write failed.",
	})
	MovesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_moves_applied_total",
		Help: "Accepted moves across all sessions.",
	})
	MovesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_moves_rejected_total",
		Help: "Rejected moves by reason.",
	}, []string{"reason"})
	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_broadcast_dropped_total",
		Help: "Broadcast messages dropped on slow subscribers.",
	})
	LocalRepliesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_local_replies_dropped_total",
		Help: "Per-connection error replies dropped on a full local buffer.",
	})
	SessionsCleaned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_sessions_cleaned_total",
		Help: "Sessions evicted by the cleanup scheduler.",
	})
	QueueWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_queue_waiting",
		Help: "Players currently waiting in the matchmaking queue.",
	})
	SessionsResident = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_sessions_resident",
		Help: "Sessions currently resident in the store.",
	})
)
