package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors for every stage of the tracker, registered on the default
// registry at init time.

var (
	// RPC client
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total JSON-RPC calls attempted",
	}, []string{"method", "status"})

	RPCRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "rpc",
		Name:      "retries_total",
		Help:      "Total JSON-RPC call retries",
	}, []string{"method", "reason"})

	RPCQuotaUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "rpc",
		Name:      "quota_used",
		Help:      "RPC calls consumed from the daily budget",
	})

	RateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total times callers waited for the local rate limiter",
	}, []string{"scope"})

	// Signature paginator
	PaginatorPages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "paginator",
		Name:      "pages_total",
		Help:      "Total signature pages fetched",
	})

	PaginatorTruncations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "paginator",
		Name:      "truncations_total",
		Help:      "Total scans that hit the page ceiling before exhausting history",
	})

	// Batch fetcher
	FetcherTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "fetcher",
		Name:      "transactions_total",
		Help:      "Total transactions examined, by outcome",
	}, []string{"outcome"})

	// Scan coordinator
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "scanner",
		Name:      "scans_total",
		Help:      "Total scan runs",
	}, []string{"type", "result"})

	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tracker",
		Subsystem: "scanner",
		Name:      "scan_duration_seconds",
		Help:      "Wall-clock scan run duration",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"type"})

	// Ledger checkpoint
	LifetimeInboundLamports = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "ledger",
		Name:      "inbound_lamports_total",
		Help:      "Lifetime gross inbound lamports per the latest checkpoint",
	})

	InboundTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "ledger",
		Name:      "inbound_transactions",
		Help:      "Inbound transactions accounted for in the latest checkpoint",
	})

	// Database pool
	DBPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "postgres",
		Name:      "db_pool_open",
		Help:      "Current number of open PostgreSQL connections in the pool",
	})

	DBPoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "postgres",
		Name:      "db_pool_in_use",
		Help:      "Current number of in-use PostgreSQL connections in the pool",
	})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts sent",
	}, []string{"channel", "alert_type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts skipped due to cooldown",
	}, []string{"channel", "alert_type"})
)
