package middleware_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/script-playground-api/internal/middleware"
)

const testCookie = "better-auth.session_token"

type authServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()
	srv := &authServer{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.calls.Add(1)
		if r.URL.Path != "/api/auth/get-session" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		cookie, err := r.Cookie(testCookie)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch cookie.Value {
		case "valid":
			_, _ = io.WriteString(w, `{"session":{"id":"s-1"},"user":{"id":"user-1","email":"ada@example.com","name":"Ada","role":"ADMIN"}}`)
		case "broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = io.WriteString(w, `null`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func identityApp(t *testing.T, gateway *middleware.SessionGateway) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Use(gateway.Authenticate())
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"id":    middleware.UserID(c),
			"role":  c.Locals(middleware.LocalUserRole),
			"email": c.Locals(middleware.LocalUserEmail),
		})
	})
	return app
}

func requestMe(t *testing.T, app *fiber.App, mutate func(*http.Request)) map[string]interface{} {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if mutate != nil {
		mutate(req)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func withCookie(value string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: testCookie, Value: value})
	}
}

func TestSessionGatewayResolvesCookieAndCaches(t *testing.T) {
	srv := newAuthServer(t)
	gateway, err := middleware.NewSessionGateway(middleware.SessionGatewayConfig{
		BaseURL:  srv.URL + "/",
		CacheTTL: time.Minute,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(gateway.Close)
	app := identityApp(t, gateway)

	body := requestMe(t, app, withCookie("valid"))
	require.Equal(t, "user-1", body["id"])
	require.Equal(t, "ADMIN", body["role"])
	require.Equal(t, "ada@example.com", body["email"])

	body = requestMe(t, app, withCookie("valid"))
	require.Equal(t, "user-1", body["id"])
	require.EqualValues(t, 1, srv.calls.Load())

	gateway.Forget("valid")
	requestMe(t, app, withCookie("valid"))
	require.EqualValues(t, 2, srv.calls.Load())
}

func TestSessionGatewayAnonymousCases(t *testing.T) {
	srv := newAuthServer(t)
	gateway, err := middleware.NewSessionGateway(middleware.SessionGatewayConfig{
		BaseURL: srv.URL,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(gateway.Close)
	app := identityApp(t, gateway)

	body := requestMe(t, app, nil)
	require.Empty(t, body["id"])
	require.Zero(t, srv.calls.Load())

	body = requestMe(t, app, withCookie("expired"))
	require.Empty(t, body["id"])

	body = requestMe(t, app, withCookie("broken"))
	require.Empty(t, body["id"])
}

func TestSessionGatewayResolveReportsUnavailableAuthService(t *testing.T) {
	srv := newAuthServer(t)
	gateway, err := middleware.NewSessionGateway(middleware.SessionGatewayConfig{
		BaseURL: srv.URL,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(gateway.Close)

	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		identity, err := gateway.Resolve(c)
		if err != nil {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}
		if identity == nil {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.SendString(identity.UserID)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "broken"})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "expired"})
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestSessionGatewayBearerToken(t *testing.T) {
	secret := "test-secret"
	gateway, err := middleware.NewSessionGateway(middleware.SessionGatewayConfig{
		JWTSecret: secret,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(gateway.Close)
	app := identityApp(t, gateway)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-7",
		"roles": []string{"ADMIN"},
		"email": "grace@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	body := requestMe(t, app, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+signed)
	})
	require.Equal(t, "user-7", body["id"])
	require.Equal(t, "ADMIN", body["role"])

	forged, err := token.SignedString([]byte("other"))
	require.NoError(t, err)
	body = requestMe(t, app, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+forged)
	})
	require.Empty(t, body["id"])
}

func TestParseBearerTokenNumericSubject(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": float64(42), "role": "USER"})
	signed, err := token.SignedString([]byte("s"))
	require.NoError(t, err)

	identity, err := middleware.ParseBearerToken("s", signed)
	require.NoError(t, err)
	require.Equal(t, "42", identity.UserID)
	require.Equal(t, "USER", identity.Role)

	_, err = middleware.ParseBearerToken("", signed)
	require.ErrorIs(t, err, middleware.ErrInvalidToken)
}
