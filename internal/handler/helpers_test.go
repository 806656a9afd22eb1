package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/script-playground-api/internal/config"
	"github.com/noah-isme/script-playground-api/internal/handler"
	"github.com/noah-isme/script-playground-api/internal/middleware"
	"github.com/noah-isme/script-playground-api/internal/models"
	"github.com/noah-isme/script-playground-api/internal/repository"
	"github.com/noah-isme/script-playground-api/internal/router"
	"github.com/noah-isme/script-playground-api/internal/service"
	"github.com/noah-isme/script-playground-api/internal/store"
	"github.com/noah-isme/script-playground-api/pkg/ai"
	"github.com/noah-isme/script-playground-api/pkg/sandbox"
)

const (
	headerTestUser = "X-Test-User"
	headerTestRole = "X-Test-Role"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

type testServer struct {
	app *fiber.App
	db  *gorm.DB
	kv  *store.MemoryStore
}

// testAuthenticate trusts identity headers so tests can act as any user.
func testAuthenticate(c *fiber.Ctx) error {
	if userID := c.Get(headerTestUser); userID != "" {
		c.Locals(middleware.LocalUserID, userID)
		c.Locals(middleware.LocalUserRole, c.Get(headerTestRole))
	}
	return c.Next()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())
	kv := store.NewMemoryStore()
	runner := sandbox.NewGojaRunner(sandbox.Options{Timeout: time.Second, Logger: logger})

	challengeRepo := repository.NewChallengeRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	challenges := service.NewChallengeService(challengeRepo, submissionRepo, nil, 0, logger)
	submissions := service.NewSubmissionService(submissionRepo, challengeRepo, runner, validate, service.SubmissionEventsConfig{}, logger)
	assistant := ai.NewAssistant(ai.NewOpenAIProvider(ai.OpenAIConfig{Logger: logger}), "gpt-4o-mini")

	cfg := config.Config{AppName: "playground-test", AppEnv: "test", RunnerEngine: "goja", AuthAdminRole: "ADMIN", AssistRateMax: 5, AssistRateSpan: time.Minute}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	router.Register(app, cfg, router.Dependencies{
		ChallengeHandler:  handler.NewChallengeHandler(challenges, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissions, logger, time.Second),
		WorkspaceHandler:  handler.NewWorkspaceHandler(service.NewWorkspaceService(challenges, submissions, kv, logger), validate, logger),
		EditorHandler:     handler.NewEditorHandler(service.NewEditorService(challenges, submissions, runner, kv, nil, logger), validate, logger),
		AdminChallengeHandler: handler.NewAdminChallengeHandler(
			service.NewAdminChallengeService(challengeRepo, validate, challenges, logger),
			service.NewLabelService(repository.NewLabelRepository(db), validate, challenges, logger),
			validate, logger,
		),
		AssistHandler: handler.NewAssistHandler(service.NewAssistService(assistant, challenges, validate, logger), logger),
		Authenticate:  testAuthenticate,
	})

	return &testServer{app: app, db: db, kv: kv}
}

func (s *testServer) seedChallenge(t *testing.T, title string, order int, description string) models.Challenge {
	t.Helper()
	challenge := models.Challenge{
		Title:       title,
		Slug:        slugFor(title),
		Description: description,
		StarterCode: "// " + title + "\n",
		Difficulty:  models.DifficultyEasy,
		Order:       order,
	}
	require.NoError(t, s.db.Create(&challenge).Error)
	return challenge
}

func slugFor(title string) string {
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch {
		case r == ' ':
			out = append(out, '-')
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// listen serves the app on a loopback port for clients that need a real
// connection (streams, websockets) and returns its base URL.
func (s *testServer) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.app.Listener(ln) }()
	t.Cleanup(func() { _ = s.app.ShutdownWithTimeout(2 * time.Second) })
	return "http://" + ln.Addr().String()
}

type requestOption func(*http.Request)

func asUser(userID string) requestOption {
	return func(r *http.Request) { r.Header.Set(headerTestUser, userID) }
}

func asAdmin(userID string) requestOption {
	return func(r *http.Request) {
		r.Header.Set(headerTestUser, userID)
		r.Header.Set(headerTestRole, "admin")
	}
}

func (s *testServer) do(t *testing.T, method, target string, body interface{}, opts ...requestOption) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload), string(raw))
	}
	return resp.StatusCode, payload
}

func decodeData(t *testing.T, raw json.RawMessage, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, target))
}
