package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/script-playground-api/internal/middleware"
)

func TestLanguageResolutionOrder(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.Language())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.RequestLanguage(c))
	})

	cases := []struct {
		name   string
		target string
		cookie string
		accept string
		want   string
	}{
		{name: "default", target: "/", want: "en"},
		{name: "accept language", target: "/", accept: "es-ES,es;q=0.9", want: "es"},
		{name: "cookie beats header", target: "/", cookie: "en", accept: "es", want: "en"},
		{name: "query beats cookie", target: "/?lang=es", cookie: "en", want: "es"},
		{name: "unsupported falls through", target: "/?lang=fr", accept: "es", want: "es"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "lang", Value: tc.cookie})
			}
			if tc.accept != "" {
				req.Header.Set("Accept-Language", tc.accept)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)

			body := make([]byte, 8)
			n, _ := resp.Body.Read(body)
			require.Equal(t, tc.want, string(body[:n]))
		})
	}
}

func TestRateLimitKeysAnonymousByIP(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.RateLimit("assist", 1, 0))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp := perform(t, app, "", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp = perform(t, app, "", "")
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}
