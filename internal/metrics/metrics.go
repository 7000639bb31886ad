// Package metrics exposes Prometheus instrumentation for the control and
// data channels.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forum_commands_total",
			Help: "Total number of control commands processed",
		},
		[]string{"command", "status"},
	)

	DatagramsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forum_datagrams_dropped_total",
			Help: "Control datagrams dropped before dispatch",
		},
		[]string{"reason"},
	)

	WorkersInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forum_workers_in_flight",
			Help: "Number of control datagrams currently being handled",
		},
	)

	TransferBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forum_transfer_bytes",
			Help:    "Size in bytes of completed file transfers",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		},
		[]string{"direction"},
	)

	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forum_transfers_total",
			Help: "File transfer outcomes",
		},
		[]string{"direction", "outcome"},
	)

	AuthTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forum_auth_total",
			Help: "Authentication outcomes",
		},
		[]string{"outcome"},
	)
)
