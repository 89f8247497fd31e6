package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScansCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scans_created_total",
		Help: "Total number of scan records created",
	}, []string{"category", "status"})

	ScansRetryTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scans_retry_total",
		Help: "Total number of unidentifiable classifications returned for retry",
	})

	ScansFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scans_failed_total",
		Help: "Total number of failed scan operations",
	}, []string{"reason"})

	PointsCreditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "points_credited_total",
		Help: "Total points credited to accounts",
	})

	PointsDebitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "points_debited_total",
		Help: "Total points debited from accounts",
	})

	LevelUpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "level_ups_total",
		Help: "Total number of account level-ups",
	})

	PurchasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purchases_total",
		Help: "Total number of completed purchases",
	})

	PurchasesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchases_failed_total",
		Help: "Total number of failed purchases",
	}, []string{"reason"})

	PurchaseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "purchase_latency_seconds",
		Help:    "Latency of the purchase transaction",
		Buckets: prometheus.DefBuckets,
	})

	ListingsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listings_submitted_total",
		Help: "Total number of listing submissions by compliance outcome",
	}, []string{"action"})

	ComplianceFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "compliance_fallback_total",
		Help: "Total number of compliance checks served by the local heuristic",
	})

	ReviewActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_actions_total",
		Help: "Total number of review queue actions",
	}, []string{"kind", "action"})

	GuestMigrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guest_migrations_total",
		Help: "Total number of guest migrations by outcome",
	}, []string{"outcome"})

	ClassificationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "classification_latency_seconds",
		Help:    "Latency of classification gateway calls",
		Buckets: prometheus.DefBuckets,
	})

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
