package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/script-playground-api/internal/middleware"
	"github.com/noah-isme/script-playground-api/internal/service"
	"github.com/noah-isme/script-playground-api/internal/utils"
	"github.com/noah-isme/script-playground-api/pkg/ai"
)

var sessionRequired = middleware.AuthOptions{RequireUser: true}

func userIDStringFromContext(c *fiber.Ctx) string {
	return middleware.UserID(c)
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func pathID(c *fiber.Ctx) (string, bool) {
	id := strings.TrimSpace(c.Params("id"))
	return id, id != ""
}

// handleServiceError maps service errors onto the response envelope.
func handleServiceError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(validationErrors))
	case errors.Is(err, service.ErrChallengeNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "challenge not found")
	case errors.Is(err, service.ErrLabelNotFound):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "label not found")
	case errors.Is(err, service.ErrChallengeSlugTaken):
		return utils.SendError(c, fiber.StatusConflict, "slug already in use")
	case errors.Is(err, service.ErrLabelExists):
		return utils.SendError(c, fiber.StatusConflict, "label already exists")
	case errors.Is(err, service.ErrCodeTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, "code is too large")
	case errors.Is(err, service.ErrSandboxUnavailable):
		requestLogger(logger, c).Error().Err(err).Msg("code runner unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "unable to run code right now")
	case errors.Is(err, service.ErrAssistUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "the assistant is not available")
	case errors.Is(err, service.ErrAssistBlocked):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "the assistant could not answer that safely, try rephrasing")
	case errors.Is(err, ai.ErrEmptyQuestion):
		return utils.SendError(c, fiber.StatusBadRequest, "question is required")
	case errors.Is(err, service.ErrAssistFailed):
		return utils.SendError(c, fiber.StatusBadGateway, "the assistant could not generate a response, please try again")
	default:
		requestLogger(logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
	}
	return details
}
