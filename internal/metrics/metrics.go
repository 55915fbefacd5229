// Package metrics holds the Prometheus collectors for the auction lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BidsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_bids_accepted_total",
		Help: "Bids appended to an item",
	})

	BidsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_bids_rejected_total",
		Help: "Bids refused, labeled by reason",
	}, []string{"reason"})

	Closings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_closings_total",
		Help: "Closing resolver invocations, labeled by trigger and outcome",
	}, []string{"trigger", "outcome"})

	DebitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_debit_failures_total",
		Help: "Committed closings whose winner debit needs repair",
	})

	DebitRepairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_debit_repairs_total",
		Help: "Attempts to settle a failed winner debit, labeled by result",
	}, []string{"result"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auction_sweep_duration_seconds",
		Help:    "Duration of a sweep reconciliation pass",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	})

	SweepOverdueItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_sweep_overdue_items",
		Help: "Overdue open items found by the last sweep pass",
	})

	ArmedTimers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_scheduler_armed_timers",
		Help: "Closing timers armed in this process and not yet fired",
	})

	HubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_hub_subscribers",
		Help: "Live bid subscriptions in this process",
	})

	HubDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_hub_dropped_total",
		Help: "Bid deliveries dropped because a subscriber was slow or gone",
	})
)
