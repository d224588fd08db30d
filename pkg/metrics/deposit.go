package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coinvault"

var (
	// outcome: ok / invalid_transition / busy / settlement_failure / error
	DepositTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deposit_transitions_total",
		Help:      "Deposit state transition attempts by event and outcome.",
	}, []string{"event", "outcome"})

	DepositLockWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "deposit_lock_wait_seconds",
		Help:      "Time spent waiting for the per-deposit lock.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms ~ 4s
	}, []string{"backend", "status"})

	// target: own / settlement
	DepositSettlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deposit_settlements_total",
		Help:      "Ledger credits performed by accept transitions.",
	}, []string{"currency", "target"})

	// route: fee_aware / standard / fiat / skipped
	CollectionDispatch = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deposit_collection_dispatch_total",
		Help:      "Collection dispatch decisions by route and status.",
	}, []string{"route", "status"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deposit_notifications_total",
		Help:      "Deposit notification deliveries by kind and status.",
	}, []string{"kind", "status"})

	EventsExported = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deposit_events_exported_total",
		Help:      "Deposit audit events published by event name and status.",
	}, []string{"event", "status"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuitbreaker_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"target"})
)
