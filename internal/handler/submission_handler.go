package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/script-playground-api/internal/dto"
	"github.com/noah-isme/script-playground-api/internal/middleware"
	"github.com/noah-isme/script-playground-api/internal/service"
	"github.com/noah-isme/script-playground-api/internal/utils"
)

// SubmissionHandler exposes code runs, submissions and the submission event stream.
type SubmissionHandler struct {
	service   service.SubmissionService
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger, keepAlive time.Duration) *SubmissionHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &SubmissionHandler{
		service:   service,
		logger:    logger.With().Str("component", "submission_handler").Logger(),
		keepAlive: keepAlive,
	}
}

// Register attaches the routes to the /api/v1 router. Every route requires a session.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("/challenges/:id/run", middleware.WithAuth(h.run, sessionRequired))
	router.Get("/challenges/:id/submissions", middleware.WithAuth(h.history, sessionRequired))
	router.Post("/submissions", middleware.WithAuth(h.create, sessionRequired))
	router.Get("/submissions/stream", middleware.WithAuth(h.stream, sessionRequired))
}

func (h *SubmissionHandler) run(c *fiber.Ctx) error {
	challengeID, ok := pathID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "challenge id required")
	}

	var payload dto.RunRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Run(requestContext(c), challengeID, payload.Code)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "code executed", result)
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	var payload dto.SubmissionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Submit(requestContext(c), userIDStringFromContext(c), payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	message := "submission saved"
	if result.Celebrate {
		message = "challenge completed"
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, message, result)
}

func (h *SubmissionHandler) history(c *fiber.Ctx) error {
	challengeID, ok := pathID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "challenge id required")
	}

	items, err := h.service.History(requestContext(c), userIDStringFromContext(c), challengeID)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submissions retrieved", items)
}

func (h *SubmissionHandler) stream(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(requestContext(c))
	events, cleanup := h.service.Subscribe(userID)
	interval := h.keepAlive

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
		}()

		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := writeSubmissionEvent(w, event); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write submission event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write submission keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func writeSubmissionEvent(w *bufio.Writer, event dto.SubmissionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: submission\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
