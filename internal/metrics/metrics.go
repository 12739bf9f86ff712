package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SnapshotFetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foodadmin_snapshot_fetches_total",
		Help: "Total number of order snapshot fetches issued.",
	})

	StreamEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foodadmin_stream_events_total",
		Help: "Total number of event-stream events received, by event name.",
	},
		[]string{"event"},
	)

	StreamReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foodadmin_stream_reconnects_total",
		Help: "Total number of event-stream reconnect attempts.",
	})

	StatusUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foodadmin_status_updates_total",
		Help: "Total number of order status updates requested by staff.",
	})

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foodadmin_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	FeedOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foodadmin_feed_orders",
		Help: "Current number of orders in the dashboard feed.",
	})
)
