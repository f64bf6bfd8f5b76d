package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Game metrics
	LogsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forestlog_logs_created_total",
			Help: "Total number of logs created by effort level",
		},
		[]string{"effort"},
	)

	PointsAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forestlog_points_awarded_total",
			Help: "Total number of points awarded",
		},
	)

	StreakTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forestlog_streak_transitions_total",
			Help: "Streak advances by streak type and transition",
		},
		[]string{"type", "transition"},
	)

	MilestonesAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forestlog_milestones_awarded_total",
			Help: "Total number of milestone badges awarded by badge",
		},
		[]string{"badge"},
	)

	LevelUps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forestlog_level_ups_total",
			Help: "Total number of level ups",
		},
	)

	// Webhook metrics
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forestlog_webhook_deliveries_total",
			Help: "Webhook delivery attempts by result",
		},
		[]string{"result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forestlog_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forestlog_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(LogsCreated)
	prometheus.MustRegister(PointsAwarded)
	prometheus.MustRegister(StreakTransitions)
	prometheus.MustRegister(MilestonesAwarded)
	prometheus.MustRegister(LevelUps)
	prometheus.MustRegister(WebhookDeliveries)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
