// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CollectionMutations counts successful add/update/delete calls per collection.
	CollectionMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "collection_mutations_total",
		Help:      "Successful collection mutations by collection and operation.",
	}, []string{"collection", "op"})

	// AuditEntries counts audit log appends.
	AuditEntries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "audit_entries_total",
		Help:      "Audit log entries written.",
	})

	// LoginAttempts counts sign-in attempts by outcome (success, failure).
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "login_attempts_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})

	// StoreLatency observes collection read and write latency.
	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portal",
		Name:      "store_op_seconds",
		Help:      "Latency of collection reads and writes.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"op"})
)
