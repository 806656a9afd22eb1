package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/script-playground-api/internal/dto"
	"github.com/noah-isme/script-playground-api/internal/middleware"
	"github.com/noah-isme/script-playground-api/internal/observability"
	"github.com/noah-isme/script-playground-api/internal/service"
	"github.com/noah-isme/script-playground-api/internal/workflow"
)

const editorEventBuffer = 64

// EditorHandler serves the live editor websocket.
type EditorHandler struct {
	service   service.EditorService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewEditorHandler creates an editor handler instance.
func NewEditorHandler(service service.EditorService, validate *validator.Validate, logger zerolog.Logger) *EditorHandler {
	return &EditorHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "editor_handler").Logger(),
	}
}

// Register binds the editor websocket on the /api/v1 router.
func (h *EditorHandler) Register(router fiber.Router) {
	router.Get("/challenges/:id/editor/ws", middleware.WithAuth(h.upgrade, sessionRequired), websocket.New(h.handleConnection))
}

func (h *EditorHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals("request_ctx", requestContext(c))
	return c.Next()
}

// editorConn serialises writes to one websocket. Session events arrive with
// the session lock held, so they are queued and written by a separate goroutine.
type editorConn struct {
	conn   *websocket.Conn
	events chan workflow.Event
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func (e *editorConn) push(event workflow.Event) {
	select {
	case <-e.done:
	case e.events <- event:
	default:
		e.logger.Warn().Str("event", string(event.Type)).Msg("editor event dropped, client too slow")
	}
}

func (e *editorConn) writeLoop() {
	for {
		select {
		case <-e.done:
			return
		case event := <-e.events:
			if err := e.conn.WriteJSON(event); err != nil {
				e.logger.Debug().Err(err).Msg("failed to write editor event")
				e.stop()
				return
			}
		}
	}
}

func (e *editorConn) stop() {
	e.once.Do(func() { close(e.done) })
}

func (h *EditorHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals(middleware.LocalUserID).(string)
	challengeID := strings.TrimSpace(conn.Params("id"))
	if userID == "" || challengeID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session required"))
		_ = conn.Close()
		return
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	logger := h.logger.With().Str("user_id", userID).Str("challenge_id", challengeID).Logger()
	client := &editorConn{
		conn:   conn,
		events: make(chan workflow.Event, editorEventBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	defer client.stop()

	session, err := h.service.Open(ctx, userID, challengeID, client.push)
	if err != nil {
		reason := "unable to open editor"
		if errors.Is(err, service.ErrChallengeNotFound) {
			reason = "challenge not found"
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
		_ = conn.Close()
		return
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn().Err(err).Msg("editor session closed with error")
		}
	}()

	observability.EditorSessions().Inc()
	defer observability.EditorSessions().Dec()

	go client.writeLoop()
	logger.Info().Msg("editor websocket connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		h.dispatch(ctx, session, client, raw)
	}

	logger.Info().Msg("editor websocket disconnected")
}

func (h *EditorHandler) dispatch(ctx context.Context, session *workflow.Session, client *editorConn, raw []byte) {
	var msg dto.EditorMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		client.push(workflow.Event{Type: workflow.EventError, Message: "invalid message"})
		return
	}
	if err := h.validator.Struct(msg); err != nil {
		client.push(workflow.Event{Type: workflow.EventError, Message: fmt.Sprintf("invalid %q message", msg.Type)})
		return
	}

	switch msg.Type {
	case dto.EditorMessageEdit:
		if msg.Code == nil {
			client.push(workflow.Event{Type: workflow.EventError, Message: "code required"})
			return
		}
		h.report(client, session.Edit(*msg.Code))
	case dto.EditorMessageRun:
		go func() {
			_, err := session.Run(ctx)
			h.report(client, err)
		}()
	case dto.EditorMessageSubmit:
		go func() {
			_, err := session.Submit(context.WithoutCancel(ctx))
			h.report(client, err)
		}()
	case dto.EditorMessageReset:
		h.report(client, session.Reset(ctx, msg.Confirm))
	case dto.EditorMessageAutoRun:
		if msg.Enabled == nil {
			client.push(workflow.Event{Type: workflow.EventError, Message: "enabled required"})
			return
		}
		h.report(client, session.SetAutoRun(ctx, *msg.Enabled))
	}
}

// report forwards caller mistakes to the client. Runtime failures were
// already announced by the session itself.
func (h *EditorHandler) report(client *editorConn, err error) {
	switch {
	case err == nil, errors.Is(err, workflow.ErrSuperseded), errors.Is(err, workflow.ErrClosed):
	case errors.Is(err, workflow.ErrNotRun),
		errors.Is(err, workflow.ErrResetNotConfirmed),
		errors.Is(err, workflow.ErrSubmitInProgress):
		client.push(workflow.Event{Type: workflow.EventError, Message: err.Error()})
	default:
		client.logger.Debug().Err(err).Msg("editor operation failed")
	}
}
