// Package metrics provides Prometheus metrics for the topology worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal tracks finished sync runs by result
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm_sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs by result",
		},
		[]string{"result"},
	)

	// SyncRunDuration tracks sync run duration in seconds
	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "crm_sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of sync runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// NodesEmitted is the node count of the last published topology
	NodesEmitted = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "crm_sync",
			Name:      "nodes_emitted",
			Help:      "Number of nodes in the last published topology",
		},
		[]string{"kind"},
	)

	// UnresolvedRoutersTotal counts services whose router is missing from the router table
	UnresolvedRoutersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crm_sync",
			Name:      "unresolved_routers_total",
			Help:      "Total number of router references that could not be resolved",
		},
	)

	// CRMRequestsTotal tracks outbound CRM requests
	CRMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm_sync",
			Subsystem: "crm",
			Name:      "requests_total",
			Help:      "Total number of CRM API requests by resource and outcome",
		},
		[]string{"resource", "outcome"},
	)
)
