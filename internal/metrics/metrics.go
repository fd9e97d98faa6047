// Package metrics provides Prometheus instrumentation for Veritas.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veritas",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "veritas",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ScoringPassesTotal counts full scoring passes by result.
	ScoringPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veritas",
			Name:      "scoring_passes_total",
			Help:      "Total scoring passes by result.",
		},
		[]string{"result"},
	)

	// WalletsScoredTotal counts per-wallet pipeline outcomes.
	WalletsScoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veritas",
			Name:      "wallets_scored_total",
			Help:      "Total wallets processed by the scoring pipeline, by outcome.",
		},
		[]string{"outcome"},
	)

	// AttestationsTotal counts trust record writes by result.
	AttestationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veritas",
			Name:      "attestations_total",
			Help:      "Total attestation attempts by result.",
		},
		[]string{"result"},
	)

	// TrustScoreWritten observes the distribution of attested scores.
	TrustScoreWritten = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "veritas",
		Name:      "trust_score_written",
		Help:      "Distribution of trust scores written to the store.",
		Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	// ClaimsTotal counts claim attempts by result.
	ClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veritas",
			Name:      "claims_total",
			Help:      "Total claim attempts by result.",
		},
		[]string{"result"},
	)

	// ClaimPayoutsWei sums paid-out amounts in wei.
	ClaimPayoutsWei = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "veritas",
		Name:      "claim_payouts_wei_total",
		Help:      "Total wei paid out to accepted claims.",
	})

	// CandidatesObserved counts wallets surfaced by the observer per pass.
	CandidatesObserved = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "veritas",
		Name:      "candidates_observed",
		Help:      "Candidate wallets discovered per scoring pass.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})

	// ActiveWebSocketClients tracks connected realtime feed clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "veritas",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "veritas", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "veritas", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "veritas", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ScoringPassesTotal,
		WalletsScoredTotal,
		AttestationsTotal,
		TrustScoreWritten,
		ClaimsTotal,
		ClaimPayoutsWei,
		CandidatesObserved,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and the runtime
// goroutine count into Prometheus gauges. Call in a goroutine; exits when
// ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
