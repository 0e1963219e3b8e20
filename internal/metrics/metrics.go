package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProductMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_product_mutations_total",
		Help: "Total number of committed product mutations.",
	},
		[]string{"action"},
	)

	VersionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_version_conflicts_total",
		Help: "Total number of product updates rejected for a stale version.",
	})

	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_status_transitions_total",
		Help: "Total number of committed order status transitions.",
	},
		[]string{"from", "to"},
	)

	OrdersCanceledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_orders_canceled_total",
		Help: "Total number of orders canceled with inventory restored.",
	})

	FeedPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_feed_polls_total",
		Help: "Total number of change feed polls.",
	},
		[]string{"mode"},
	)

	OutboxSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_outbox_sent_total",
		Help: "Outbox tasks handed to the producer, by result.",
	},
		[]string{"result"},
	)

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status code.",
		Buckets: prometheus.DefBuckets,
	},
		[]string{"method", "route", "code"},
	)

	ProductCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_product_cache_items",
		Help: "Current number of items in the product cache.",
	})
)
