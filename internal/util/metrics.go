package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_committed_total",
		Help: "Total number of committed sales",
	})

	SalesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_rejected_total",
		Help: "Total number of rejected sale commits",
	}, []string{"reason"})

	SaleLinesCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sale_lines_committed_total",
		Help: "Total number of sale lines applied to the catalog",
	})

	SaleCommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sale_commit_latency_seconds",
		Help:    "Latency of sale commits",
		Buckets: prometheus.DefBuckets,
	})

	ProfitCreditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "profit_credited_total",
		Help: "Sum of profit credited to the ledger since process start",
	})

	ProfitLedgerTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "profit_ledger_total",
		Help: "Current profit ledger total",
	})

	ProfitResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "profit_resets_total",
		Help: "Total number of profit ledger resets",
	})

	StockAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_alerts_total",
		Help: "Total number of stock alerts raised after sales",
	}, []string{"level"})

	CartSessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cart_sessions_open",
		Help: "Number of open server-side cart sessions",
	})

	CatalogCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_requests_total",
		Help: "Sale catalog snapshot cache lookups",
	}, []string{"result"})

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
