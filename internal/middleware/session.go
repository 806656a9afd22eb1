package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Yiling-J/theine-go"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/script-playground-api/internal/observability"
)

// Locals keys populated for authenticated requests.
const (
	LocalUserID    = "user_id"
	LocalUserRole  = "user_role"
	LocalUserEmail = "user_email"
	LocalUserName  = "user_name"
)

const sessionPath = "/api/auth/get-session"

// Identity is the authenticated user behind a request.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// SessionGatewayConfig configures session resolution.
type SessionGatewayConfig struct {
	// BaseURL of the external auth service. Empty disables cookie sessions.
	BaseURL    string
	CookieName string
	// JWTSecret verifies bearer tokens. Empty disables bearer authentication.
	JWTSecret  string
	CacheTTL   time.Duration
	CacheSize  int
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// SessionGateway resolves the identity behind a request from the session
// cookie (validated by the external auth service) or a bearer JWT.
type SessionGateway struct {
	cfg    SessionGatewayConfig
	client *http.Client
	cache  *theine.LoadingCache[string, *Identity]
	logger zerolog.Logger
}

type sessionPayload struct {
	Session json.RawMessage `json:"session"`
	User    *Identity       `json:"user"`
}

// NewSessionGateway builds the gateway and its session cache.
func NewSessionGateway(cfg SessionGatewayConfig) (*SessionGateway, error) {
	if cfg.CookieName == "" {
		cfg.CookieName = "better-auth.session_token"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 20 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 500
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	gateway := &SessionGateway{
		cfg:    cfg,
		client: client,
		logger: cfg.Logger.With().Str("component", "session_gateway").Logger(),
	}

	cache, err := theine.NewBuilder[string, *Identity](int64(cfg.CacheSize)).BuildWithLoader(func(ctx context.Context, token string) (theine.Loaded[*Identity], error) {
		identity, err := gateway.fetchSession(ctx, token)
		if err != nil {
			return theine.Loaded[*Identity]{}, err
		}
		return theine.Loaded[*Identity]{Value: identity, Cost: 1, TTL: cfg.CacheTTL}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not build session cache: %w", err)
	}
	gateway.cache = cache

	return gateway, nil
}

// Resolve returns the request identity, or nil for anonymous requests.
// Errors are reserved for an unreachable auth service.
func (g *SessionGateway) Resolve(c *fiber.Ctx) (*Identity, error) {
	if token, ok := bearerToken(c.Get(fiber.HeaderAuthorization)); ok && g.cfg.JWTSecret != "" {
		identity, err := ParseBearerToken(g.cfg.JWTSecret, token)
		if err != nil {
			observability.SessionLookups().WithLabelValues("bearer", "invalid").Inc()
			return nil, nil
		}
		observability.SessionLookups().WithLabelValues("bearer", "ok").Inc()
		return &identity, nil
	}

	token := strings.TrimSpace(c.Cookies(g.cfg.CookieName))
	if token == "" || g.cfg.BaseURL == "" {
		return nil, nil
	}

	identity, err := g.cache.Get(c.UserContext(), token)
	if err != nil {
		observability.SessionLookups().WithLabelValues("cookie", "error").Inc()
		return nil, err
	}
	if identity == nil {
		observability.SessionLookups().WithLabelValues("cookie", "anonymous").Inc()
		return nil, nil
	}
	observability.SessionLookups().WithLabelValues("cookie", "ok").Inc()
	return identity, nil
}

// Forget drops a cached session, e.g. after sign-out.
func (g *SessionGateway) Forget(token string) {
	g.cache.Delete(token)
}

// Authenticate attaches the identity to the request locals when one is
// present. It never rejects; guards decide what anonymous callers may do.
func (g *SessionGateway) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := g.Resolve(c)
		if err != nil {
			g.logger.Warn().Err(err).Str("correlation_id", GetCorrelationID(c)).Msg("session lookup failed")
		}
		if identity != nil {
			c.Locals(LocalUserID, identity.UserID)
			c.Locals(LocalUserRole, identity.Role)
			c.Locals(LocalUserEmail, identity.Email)
			c.Locals(LocalUserName, identity.Name)
		}
		return c.Next()
	}
}

// Close releases the session cache.
func (g *SessionGateway) Close() {
	g.cache.Close()
}

func (g *SessionGateway) fetchSession(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+sessionPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: g.cfg.CookieName, Value: token})

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("auth service responded %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read auth service response: %w", err)
	}

	var payload *sessionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode auth service response: %w", err)
	}
	if payload == nil || payload.User == nil || isJSONNull(payload.Session) {
		return nil, nil
	}

	identity := *payload.User
	identity.UserID = strings.TrimSpace(identity.UserID)
	if identity.UserID == "" {
		return nil, errors.New("auth service returned a session without user id")
	}
	return &identity, nil
}

func isJSONNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
