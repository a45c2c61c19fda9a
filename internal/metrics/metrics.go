// Package metrics exposes prometheus counters for the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollTicks counts scheduler ticks by kind (transcript, session_list).
	PollTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livedesk_poll_ticks_total",
		Help: "Scheduled fetches attempted, by kind.",
	}, []string{"kind"})

	// PollFailures counts failed fetches by kind. A failure never stops the
	// scheduler; it is counted and retried on the next tick.
	PollFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livedesk_poll_failures_total",
		Help: "Scheduled fetches that returned an error, by kind.",
	}, []string{"kind"})

	// SendsTotal counts send pipeline outcomes (confirmed, failed).
	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livedesk_sends_total",
		Help: "Outgoing message deliveries, by result.",
	}, []string{"result"})

	// ReconcilePasses counts reconciler merges.
	ReconcilePasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livedesk_reconcile_passes_total",
		Help: "Reconciliation passes performed.",
	})

	// StaleFetchesDropped counts transcript responses discarded because the
	// active session changed while the fetch was in flight.
	StaleFetchesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livedesk_stale_fetches_dropped_total",
		Help: "Transcript fetch responses discarded as stale.",
	})
)
