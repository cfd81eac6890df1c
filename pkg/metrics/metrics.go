package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubsync_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// AccountActions counts account workflow actions and their outcome.
	AccountActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubsync_account_actions_total",
			Help: "Total number of account workflow actions",
		},
		[]string{"action", "result"},
	)

	// HubSpotRequests counts outbound HubSpot API calls by operation and status code.
	HubSpotRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubsync_hubspot_requests_total",
			Help: "Total number of outbound HubSpot API requests",
		},
		[]string{"operation", "status"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hubsync_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
