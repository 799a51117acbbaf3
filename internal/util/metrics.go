package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_orders_started_total",
		Help: "Total number of orders opened on a table",
	})

	OrdersClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_orders_closed_total",
		Help: "Total number of orders paid, by payment method",
	}, []string{"payment_method"})

	OrdersCanceledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_orders_canceled_total",
		Help: "Total number of canceled orders",
	})

	OrderItemsAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_order_items_added_total",
		Help: "Total number of item quantities added to orders",
	})

	DuplicateRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_duplicate_requests_total",
		Help: "Total number of mutating requests skipped by idempotency key",
	})

	SalesAmountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sales_amount_total",
		Help: "Sum of recorded sale amounts, by payment method",
	}, []string{"payment_method"})

	SalesCanceledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sales_canceled_total",
		Help: "Total number of reversed sales",
	})

	OperationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_operations_failed_total",
		Help: "Total number of failed lifecycle operations",
	}, []string{"operation", "kind"})

	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_operation_latency_seconds",
		Help:    "Latency of lifecycle operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	LockWaitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_lock_wait_seconds",
		Help:    "Time spent waiting for table and order locks",
		Buckets: prometheus.DefBuckets,
	})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_events_published_total",
		Help: "Total number of events published",
	}, []string{"event_type"})

	EventsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_events_failed_total",
		Help: "Total number of events that could not be published",
	}, []string{"event_type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
