package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce           sync.Once
	httpRequestsTotal      *prometheus.CounterVec
	httpLatencySeconds     *prometheus.HistogramVec
	httpErrorsTotal        *prometheus.CounterVec
	challengeCacheTotal    *prometheus.CounterVec
	submissionsTotal       *prometheus.CounterVec
	submissionEventsTotal  *prometheus.CounterVec
	sessionLookupsTotal    *prometheus.CounterVec
	editorSessionsActive   prometheus.Gauge
	assistRequestsTotal    *prometheus.CounterVec
	reorderOperationsTotal *prometheus.CounterVec
	runnerExecutionsTotal  *prometheus.CounterVec
	consoleLinesTotal      *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors shared by handlers and services.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "API requests served by surface (public, learner, assist, admin).",
		}, []string{"surface", "method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency distribution for API requests. Runs and assist calls dominate the upper buckets.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"surface", "method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Error responses returned by the API.",
		}, []string{"surface", "method", "route", "status"})

		challengeCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "challenge_list_cache_total",
			Help: "Challenge list cache lookups by result.",
		}, []string{"result"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Stored submissions by status.",
		}, []string{"status"})

		submissionEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submission_events_total",
			Help: "Submission events handled by origin.",
		}, []string{"origin"})

		sessionLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_lookups_total",
			Help: "Session resolutions by method and result.",
		}, []string{"method", "result"})

		editorSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "editor_sessions_active",
			Help: "Number of open editor websocket sessions.",
		})

		assistRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assist_requests_total",
			Help: "AI assist requests by mode and outcome.",
		}, []string{"mode", "outcome"})

		reorderOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "challenge_reorder_total",
			Help: "Challenge reorder attempts by outcome.",
		}, []string{"outcome"})

		runnerExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runner_executions_total",
			Help: "Sandboxed code executions by outcome.",
		}, []string{"outcome"})

		consoleLinesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runner_console_lines_total",
			Help: "Console lines captured from learner code by level.",
		}, []string{"level"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			challengeCacheTotal,
			submissionsTotal,
			submissionEventsTotal,
			sessionLookupsTotal,
			editorSessionsActive,
			assistRequestsTotal,
			reorderOperationsTotal,
			runnerExecutionsTotal,
			consoleLinesTotal,
		)
	})
}

// HTTPRequests exposes the API request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the API latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the API error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ChallengeCache exposes the list cache counter (hit, miss, error).
func ChallengeCache() *prometheus.CounterVec {
	RegisterMetrics()
	return challengeCacheTotal
}

// Submissions exposes the stored submissions counter.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// SubmissionEvents exposes the submission event counter (local, remote).
func SubmissionEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionEventsTotal
}

// SessionLookups exposes the session resolution counter.
func SessionLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return sessionLookupsTotal
}

// EditorSessions exposes the open editor session gauge.
func EditorSessions() prometheus.Gauge {
	RegisterMetrics()
	return editorSessionsActive
}

// AssistRequests exposes the AI assist counter.
func AssistRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return assistRequestsTotal
}

// ReorderOperations exposes the reorder outcome counter.
func ReorderOperations() *prometheus.CounterVec {
	RegisterMetrics()
	return reorderOperationsTotal
}

// RunnerExecutions exposes the sandbox execution counter (success, error, timeout, unavailable).
func RunnerExecutions() *prometheus.CounterVec {
	RegisterMetrics()
	return runnerExecutionsTotal
}

// ConsoleLines exposes the captured console line counter.
func ConsoleLines() *prometheus.CounterVec {
	RegisterMetrics()
	return consoleLinesTotal
}

// MetricsHandler serves the scrape endpoint, in OpenMetrics format when the scraper asks for it.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
