// Package metrics defines the prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsCreated counts persisted notification records by kind.
	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gearup_notifications_created_total",
		Help: "Number of notification records persisted, by kind.",
	}, []string{"kind"})

	// DispatchRejected counts events dropped because the dispatch queue was
	// saturated with all workers busy.
	DispatchRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gearup_dispatch_rejected_total",
		Help: "Number of notification events rejected by the async dispatcher.",
	})

	// OpenChannels tracks the number of currently open push channels.
	OpenChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gearup_sse_open_channels",
		Help: "Number of currently open notification push channels.",
	})

	// FanoutSendFailures counts failed per-channel sends during fan-out.
	FanoutSendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gearup_sse_send_failures_total",
		Help: "Number of failed channel sends during notification fan-out.",
	})
)
