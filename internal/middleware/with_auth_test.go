package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/script-playground-api/internal/middleware"
)

// localsApp copies X-Test-User and X-Test-Role into the request locals the
// way the session gateway would.
func localsApp(guard ...fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if user := c.Get("X-Test-User"); user != "" {
			c.Locals(middleware.LocalUserID, user)
			c.Locals(middleware.LocalUserRole, c.Get("X-Test-Role"))
		}
		return c.Next()
	})
	for _, handler := range guard {
		app.Use(handler)
	}
	return app
}

func TestWithAuthGuards(t *testing.T) {
	cases := []struct {
		name     string
		opts     middleware.AuthOptions
		user     string
		role     string
		expected int
	}{
		{name: "role matches case-insensitively", opts: middleware.AuthOptions{Roles: []string{"ADMIN"}}, user: "user-10", role: "Admin", expected: fiber.StatusNoContent},
		{name: "role denied", opts: middleware.AuthOptions{Roles: []string{"ADMIN"}}, user: "user-10", role: "USER", expected: fiber.StatusForbidden},
		{name: "roles imply a user", opts: middleware.AuthOptions{Roles: []string{"ADMIN"}}, expected: fiber.StatusUnauthorized},
		{name: "session required", opts: middleware.AuthOptions{RequireUser: true}, expected: fiber.StatusUnauthorized},
		{name: "session present", opts: middleware.AuthOptions{RequireUser: true}, user: "user-3", expected: fiber.StatusNoContent},
		{name: "anonymous allowed", opts: middleware.AuthOptions{}, expected: fiber.StatusNoContent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := localsApp()
			app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusNoContent)
			}, tc.opts))

			resp := perform(t, app, tc.user, tc.role)
			require.Equal(t, tc.expected, resp.StatusCode)
		})
	}
}

func TestRequireSessionPassesUserThrough(t *testing.T) {
	app := localsApp(middleware.RequireSession())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.UserID(c))
	})

	require.Equal(t, fiber.StatusUnauthorized, perform(t, app, "", "").StatusCode)
	require.Equal(t, fiber.StatusOK, perform(t, app, "user-3", "").StatusCode)
}

func perform(t *testing.T, app *fiber.App, user, role string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if user != "" {
		req.Header.Set("X-Test-User", user)
		req.Header.Set("X-Test-Role", role)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}
