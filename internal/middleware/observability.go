package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/script-playground-api/internal/observability"
)

// Observability records Prometheus metrics and a structured access log line
// for every API request. Websocket upgrades and the metrics scrape are skipped.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()
	accessLogger := logger.With().Str("component", "http").Logger()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		surface, ok := requestSurface(c.Path())
		if !ok || isUpgrade(c) {
			return err
		}

		duration := time.Since(start)
		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()
		statusLabel := strconv.Itoa(status)

		observability.HTTPRequests().WithLabelValues(surface, method, route, statusLabel).Inc()
		observability.HTTPLatency().WithLabelValues(surface, method, route).Observe(duration.Seconds())
		if status >= fiber.StatusBadRequest {
			observability.HTTPErrors().WithLabelValues(surface, method, route, statusLabel).Inc()
		}

		event := accessLogger.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = accessLogger.Error()
		case status >= fiber.StatusBadRequest:
			event = accessLogger.Warn()
		}
		event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("surface", surface).
			Str("route", route).
			Str("method", method).
			Int("status", status).
			Str("user_id", UserID(c)).
			Float64("latency_ms", float64(duration)/float64(time.Millisecond)).
			Str("latency_bucket", latencyBucket(duration)).
			Msg("request completed")

		return err
	}
}

// requestSurface groups API paths for metric labels.
func requestSurface(path string) (string, bool) {
	switch {
	case strings.HasPrefix(path, "/api/admin"):
		return "admin", true
	case strings.HasPrefix(path, "/api/v1/assist"):
		return "assist", true
	case strings.HasPrefix(path, "/api/v1/health"), isCatalogPath(path):
		return "public", true
	case strings.HasPrefix(path, "/api/"):
		return "learner", true
	default:
		return "", false
	}
}

// isCatalogPath matches the challenge list and detail routes but not the
// per-challenge learner routes nested below them.
func isCatalogPath(path string) bool {
	rest, ok := strings.CutPrefix(path, "/api/v1/challenges")
	if !ok {
		return false
	}
	rest = strings.Trim(rest, "/")
	return !strings.Contains(rest, "/")
}

func isUpgrade(c *fiber.Ctx) bool {
	return strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket")
}

func routeTemplate(c *fiber.Ctx) string {
	if c.Route() != nil && c.Route().Path != "" {
		return c.Route().Path
	}
	return c.Path()
}

func latencyBucket(duration time.Duration) string {
	switch {
	case duration <= 25*time.Millisecond:
		return "<=25ms"
	case duration <= 100*time.Millisecond:
		return "<=100ms"
	case duration <= 500*time.Millisecond:
		return "<=500ms"
	case duration <= 2*time.Second:
		return "<=2s"
	default:
		return ">2s"
	}
}
