package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Current number of active HTTP requests",
		},
	)

	// Database Metrics
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "collection"},
	)

	// Authentication Metrics
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"status", "type"}, // success/failure, login/2fa
	)

	// Session Metrics
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_started_total",
			Help: "Total number of session lifecycles started",
		},
	)

	SessionTerminations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_terminations_total",
			Help: "Total number of session lifecycles ended, by reason",
		},
		[]string{"reason"}, // expired, logged_out, superseded
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Number of active session lifecycles in this process",
		},
	)

	SessionHealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_health_checks_total",
			Help: "Session health checks by resulting state",
		},
		[]string{"state"},
	)

	// Risk Metrics
	RiskAssessments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_assessments_total",
			Help: "Risk assessments by resulting level",
		},
		[]string{"level"},
	)

	RiskFactorsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_factors_total",
			Help: "Risk factors that triggered during assessments",
		},
		[]string{"flag"},
	)

	// Security event log Metrics
	SecurityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_events_total",
			Help: "Security events accepted by the event log",
		},
		[]string{"type"},
	)

	SecurityEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_events_dropped_total",
			Help: "Security events dropped because the queue was full or closed",
		},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors by component and type",
		},
		[]string{"component", "type"}, // database, cache, resolver, ...
	)
)

// TrackDBOperation tracks database operation duration
func TrackDBOperation(operation, collection string) *prometheus.Timer {
	return prometheus.NewTimer(DBOperationDuration.WithLabelValues(operation, collection))
}

// TrackAuthAttempt records authentication attempts
func TrackAuthAttempt(status, authType string) {
	AuthAttempts.WithLabelValues(status, authType).Inc()
}

// TrackError increments the error counter by component and type
func TrackError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

func TrackSessionStarted() {
	SessionsStarted.Inc()
	ActiveSessions.Inc()
}

func TrackSessionEnded(reason string) {
	SessionTerminations.WithLabelValues(reason).Inc()
	ActiveSessions.Dec()
}

func TrackHealthCheck(state string) {
	SessionHealthChecks.WithLabelValues(state).Inc()
}

func TrackRiskAssessment(level string, flags []string) {
	RiskAssessments.WithLabelValues(level).Inc()
	for _, flag := range flags {
		RiskFactorsTriggered.WithLabelValues(flag).Inc()
	}
}
