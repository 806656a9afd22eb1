package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/script-playground-api/internal/utils"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	// Roles restricts access to the listed roles. Empty allows any role.
	Roles       []string
	RequireUser bool
}

// WithAuth wraps a single handler with the session and role guards.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	requireUser := opts.RequireUser || len(opts.Roles) > 0
	allowed := roleSet(opts.Roles)

	return func(c *fiber.Ctx) error {
		if requireUser && UserID(c) == "" {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		if len(allowed) > 0 && !hasRole(c, allowed) {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
		}
		return handler(c)
	}
}

// RequireSession rejects anonymous requests with 401.
func RequireSession() fiber.Handler {
	return WithAuth(func(c *fiber.Ctx) error { return c.Next() }, AuthOptions{RequireUser: true})
}
