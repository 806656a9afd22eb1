package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/script-playground-api/internal/middleware"
	"github.com/noah-isme/script-playground-api/internal/service"
	"github.com/noah-isme/script-playground-api/internal/utils"
)

// ChallengeHandler exposes public challenge browsing.
type ChallengeHandler struct {
	service service.ChallengeService
	logger  zerolog.Logger
}

// NewChallengeHandler constructs a challenge handler.
func NewChallengeHandler(service service.ChallengeService, logger zerolog.Logger) *ChallengeHandler {
	return &ChallengeHandler{
		service: service,
		logger:  logger.With().Str("component", "challenge_handler").Logger(),
	}
}

// Register wires challenge routes. Both routes allow anonymous callers.
func (h *ChallengeHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Get("/:slug", h.detail)
}

func (h *ChallengeHandler) list(c *fiber.Ctx) error {
	items, err := h.service.List(requestContext(c), userIDStringFromContext(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "challenges retrieved", items)
}

func (h *ChallengeHandler) detail(c *fiber.Ctx) error {
	slug := strings.TrimSpace(c.Params("slug"))
	if slug == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "slug required")
	}

	detail, err := h.service.GetBySlug(requestContext(c), slug, userIDStringFromContext(c), middleware.RequestLanguage(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "challenge retrieved", detail)
}
