package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/script-playground-api/internal/dto"
	"github.com/noah-isme/script-playground-api/internal/middleware"
	"github.com/noah-isme/script-playground-api/internal/service"
	"github.com/noah-isme/script-playground-api/internal/utils"
)

// WorkspaceHandler exposes drafts, the auto-run preference and the initial editor state.
type WorkspaceHandler struct {
	service   service.WorkspaceService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewWorkspaceHandler constructs a workspace handler.
func NewWorkspaceHandler(service service.WorkspaceService, validate *validator.Validate, logger zerolog.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "workspace_handler").Logger(),
	}
}

// Register binds workspace routes on the /api/v1 router.
func (h *WorkspaceHandler) Register(router fiber.Router) {
	router.Get("/challenges/:id/workspace", middleware.WithAuth(h.workspace, sessionRequired))
	router.Get("/challenges/:id/draft", middleware.WithAuth(h.getDraft, sessionRequired))
	router.Put("/challenges/:id/draft", middleware.WithAuth(h.saveDraft, sessionRequired))
	router.Delete("/challenges/:id/draft", middleware.WithAuth(h.deleteDraft, sessionRequired))
	router.Get("/preferences/autorun", middleware.WithAuth(h.getAutoRun, sessionRequired))
	router.Put("/preferences/autorun", middleware.WithAuth(h.setAutoRun, sessionRequired))
}

func (h *WorkspaceHandler) workspace(c *fiber.Ctx) error {
	challengeID, ok := pathID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "challenge id required")
	}

	state, err := h.service.Workspace(requestContext(c), userIDStringFromContext(c), challengeID)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "workspace resolved", state)
}

func (h *WorkspaceHandler) getDraft(c *fiber.Ctx) error {
	challengeID, ok := pathID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "challenge id required")
	}

	draft, err := h.service.GetDraft(requestContext(c), userIDStringFromContext(c), challengeID)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "draft retrieved", draft)
}

func (h *WorkspaceHandler) saveDraft(c *fiber.Ctx) error {
	challengeID, ok := pathID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "challenge id required")
	}

	var payload dto.DraftRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	draft, err := h.service.SaveDraft(requestContext(c), userIDStringFromContext(c), challengeID, payload.Code)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "draft saved", draft)
}

func (h *WorkspaceHandler) deleteDraft(c *fiber.Ctx) error {
	challengeID, ok := pathID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "challenge id required")
	}

	if err := h.service.DeleteDraft(requestContext(c), userIDStringFromContext(c), challengeID); err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "draft deleted", nil)
}

func (h *WorkspaceHandler) getAutoRun(c *fiber.Ctx) error {
	pref, err := h.service.AutoRun(requestContext(c), userIDStringFromContext(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "auto-run preference", pref)
}

func (h *WorkspaceHandler) setAutoRun(c *fiber.Ctx) error {
	var payload dto.AutoRunRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return handleServiceError(c, h.logger, err)
	}

	pref, err := h.service.SetAutoRun(requestContext(c), userIDStringFromContext(c), *payload.Enabled)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "auto-run preference saved", pref)
}
