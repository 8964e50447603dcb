package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of sales orders created",
	}, []string{"currency"})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected order creations",
	}, []string{"reason"})

	OrdersEditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_edited_total",
		Help: "Total number of order edits",
	})

	OrdersDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_deleted_total",
		Help: "Total number of deleted orders",
	})

	StockMovementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_movements_total",
		Help: "Units moved in or out of stock",
	}, []string{"type", "direction"})

	StockReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_reserve_latency_seconds",
		Help:    "Latency of stock cache reservations",
		Buckets: prometheus.DefBuckets,
	})

	StockCacheFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_cache_fallbacks_total",
		Help: "Stock cache operations that fell back to the database",
	}, []string{"operation"})

	LowStockAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "low_stock_alerts_total",
		Help: "Low stock alerts raised",
	}, []string{"level"})

	ReturnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "returns_total",
		Help: "Return requests by outcome",
	}, []string{"outcome"})

	RefundedAmountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refunded_amount_total",
		Help: "Approved refund amounts",
	}, []string{"currency"})

	InvoicesGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoices_generated_total",
		Help: "Invoices generated by mode",
	}, []string{"mode"})

	ExpensesRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "expenses_recorded_total",
		Help: "Total number of recorded expenses",
	})

	AuthFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "Rejected authentication attempts",
	}, []string{"reason"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Domain events published",
	}, []string{"type", "result"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_consumed_total",
		Help: "Domain events handled by workers",
	}, []string{"type", "result"})

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
