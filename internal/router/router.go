package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/script-playground-api/internal/config"
	"github.com/noah-isme/script-playground-api/internal/handler"
	"github.com/noah-isme/script-playground-api/internal/middleware"
	"github.com/noah-isme/script-playground-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChallengeHandler      *handler.ChallengeHandler
	SubmissionHandler     *handler.SubmissionHandler
	WorkspaceHandler      *handler.WorkspaceHandler
	EditorHandler         *handler.EditorHandler
	AdminChallengeHandler *handler.AdminChallengeHandler
	AssistHandler         *handler.AssistHandler
	HealthProbes          []handler.HealthProbe
	// Authenticate resolves the caller identity; nil treats every request as anonymous.
	Authenticate fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	authenticate := deps.Authenticate
	if authenticate == nil {
		authenticate = func(c *fiber.Ctx) error { return c.Next() }
	}

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	}, authenticate, middleware.Language())
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	if deps.ChallengeHandler != nil {
		deps.ChallengeHandler.Register(api.Group("/challenges"))
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(api)
	}
	if deps.WorkspaceHandler != nil {
		deps.WorkspaceHandler.Register(api)
	}
	if deps.EditorHandler != nil {
		deps.EditorHandler.Register(api)
	}

	if deps.AssistHandler != nil {
		assist := api.Group("/assist", middleware.RequireSession(), middleware.RateLimit("assist", cfg.AssistRateMax, cfg.AssistRateSpan))
		deps.AssistHandler.Register(assist)
	}

	admin := app.Group("/api/admin", authenticate, middleware.RequireRole(cfg.AuthAdminRole))
	if deps.AdminChallengeHandler != nil {
		deps.AdminChallengeHandler.Register(admin)
	}
	if deps.AssistHandler != nil {
		deps.AssistHandler.RegisterAdmin(admin)
	}
}
