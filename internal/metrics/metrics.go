// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Updates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testbot_updates_total",
			Help: "Inbound bot updates by kind",
		},
		[]string{"kind"}, // command|callback|text
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testbot_deliveries_total",
			Help: "Outbound notifications by payload kind and status",
		},
		[]string{"kind", "status"},
	)

	GradingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testbot_grading_runs_total",
			Help: "Grading runs by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)
)
