package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/script-playground-api/internal/dto"
	"github.com/noah-isme/script-playground-api/internal/service"
	"github.com/noah-isme/script-playground-api/internal/utils"
)

// AdminChallengeHandler wires admin challenge and label endpoints.
type AdminChallengeHandler struct {
	challenges service.AdminChallengeService
	labels     service.LabelService
	validator  *validator.Validate
	logger     zerolog.Logger
}

// NewAdminChallengeHandler constructs the handler.
func NewAdminChallengeHandler(challenges service.AdminChallengeService, labels service.LabelService, validate *validator.Validate, logger zerolog.Logger) *AdminChallengeHandler {
	return &AdminChallengeHandler{
		challenges: challenges,
		labels:     labels,
		validator:  validate,
		logger:     logger.With().Str("component", "admin_challenge_handler").Logger(),
	}
}

// Register attaches admin routes to the /api/admin group.
func (h *AdminChallengeHandler) Register(router fiber.Router) {
	challenges := router.Group("/challenges")
	challenges.Get("", h.list)
	challenges.Post("", h.create)
	challenges.Put("/order", h.reorder)
	challenges.Post("/order/move", h.move)
	challenges.Get("/:id", h.get)
	challenges.Patch("/:id", h.update)
	challenges.Delete("/:id", h.delete)

	labels := router.Group("/labels")
	labels.Get("", h.listLabels)
	labels.Post("", h.createLabel)
}

func (h *AdminChallengeHandler) list(c *fiber.Ctx) error {
	items, err := h.challenges.List(requestContext(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "challenges retrieved", items)
}

func (h *AdminChallengeHandler) get(c *fiber.Ctx) error {
	id, ok := pathID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	challenge, err := h.challenges.Get(requestContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "challenge retrieved", challenge)
}

func (h *AdminChallengeHandler) create(c *fiber.Ctx) error {
	var payload dto.ChallengeCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	challenge, err := h.challenges.Create(requestContext(c), payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "challenge created", challenge)
}

func (h *AdminChallengeHandler) update(c *fiber.Ctx) error {
	id, ok := pathID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.ChallengeUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	challenge, err := h.challenges.Update(requestContext(c), id, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "challenge updated", challenge)
}

func (h *AdminChallengeHandler) delete(c *fiber.Ctx) error {
	id, ok := pathID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	if err := h.challenges.Delete(requestContext(c), id); err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "challenge deleted", nil)
}

func (h *AdminChallengeHandler) reorder(c *fiber.Ctx) error {
	var payload dto.ReorderRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	items, err := h.challenges.Reorder(requestContext(c), payload)
	if err != nil {
		return h.orderError(c, items, err)
	}
	return utils.SendSuccess(c, "challenge order saved", items)
}

func (h *AdminChallengeHandler) move(c *fiber.Ctx) error {
	var payload dto.MoveRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return handleServiceError(c, h.logger, err)
	}

	items, err := h.challenges.Move(requestContext(c), *payload.From, *payload.To)
	if err != nil {
		return h.orderError(c, items, err)
	}
	return utils.SendSuccess(c, "challenge order saved", items)
}

// orderError carries the persisted order in the error details so clients can
// roll their optimistic list back.
func (h *AdminChallengeHandler) orderError(c *fiber.Ctx, persisted []dto.AdminChallengeResponse, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidOrder):
		return utils.Fail(c, fiber.StatusUnprocessableEntity, err.Error(), persisted)
	case errors.Is(err, service.ErrReorderFailed):
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to persist challenge order")
		return utils.Fail(c, fiber.StatusInternalServerError, "failed to save the new order, changes were rolled back", persisted)
	default:
		return handleServiceError(c, h.logger, err)
	}
}

func (h *AdminChallengeHandler) listLabels(c *fiber.Ctx) error {
	labels, err := h.labels.List(requestContext(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "labels retrieved", labels)
}

func (h *AdminChallengeHandler) createLabel(c *fiber.Ctx) error {
	var payload dto.LabelCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	label, err := h.labels.Create(requestContext(c), payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "label created", label)
}
