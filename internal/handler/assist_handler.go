package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/script-playground-api/internal/dto"
	"github.com/noah-isme/script-playground-api/internal/service"
	"github.com/noah-isme/script-playground-api/internal/utils"
)

// AssistHandler exposes AI explanations, questions and translation.
type AssistHandler struct {
	service service.AssistService
	logger  zerolog.Logger
}

// NewAssistHandler constructs an assist handler.
func NewAssistHandler(service service.AssistService, logger zerolog.Logger) *AssistHandler {
	return &AssistHandler{
		service: service,
		logger:  logger.With().Str("component", "assist_handler").Logger(),
	}
}

// Register binds the learner routes under /api/v1/assist.
func (h *AssistHandler) Register(router fiber.Router) {
	router.Post("/explain", h.explain)
	router.Post("/ask", h.ask)
}

// RegisterAdmin binds the translation route on the admin group.
func (h *AssistHandler) RegisterAdmin(router fiber.Router) {
	router.Post("/translate", h.translate)
}

func (h *AssistHandler) explain(c *fiber.Ctx) error {
	var payload dto.ExplainRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	answer, err := h.service.Explain(requestContext(c), payload, c.Get(fiber.HeaderAcceptLanguage))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "explanation generated", answer)
}

func (h *AssistHandler) ask(c *fiber.Ctx) error {
	var payload dto.AskRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	answer, err := h.service.Ask(requestContext(c), payload, c.Get(fiber.HeaderAcceptLanguage))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "answer generated", answer)
}

func (h *AssistHandler) translate(c *fiber.Ctx) error {
	var payload dto.TranslateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	translated, err := h.service.Translate(requestContext(c), payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "translation generated", translated)
}
