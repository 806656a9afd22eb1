package service

import (
	"context"
	"errors"
	"math/rand"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/script-playground-api/internal/dto"
	"github.com/noah-isme/script-playground-api/internal/models"
	"github.com/noah-isme/script-playground-api/internal/repository"
)

// ErrLabelExists indicates a label with the same name already exists.
var ErrLabelExists = errors.New("label already exists")

// LabelPalette lists the colors assigned to labels created without one.
var LabelPalette = []string{"#ef4444", "#f97316", "#eab308", "#22c55e", "#3b82f6", "#a855f7", "#ec4899"}

// LabelService manages challenge labels.
type LabelService interface {
	List(ctx context.Context) ([]dto.LabelResponse, error)
	Create(ctx context.Context, payload dto.LabelCreateRequest) (dto.LabelResponse, error)
}

type labelService struct {
	repo      repository.LabelRepository
	validator *validator.Validate
	cache     CacheInvalidator
	logger    zerolog.Logger
	pick      func(n int) int
}

// NewLabelService constructs the label service.
func NewLabelService(repo repository.LabelRepository, validate *validator.Validate, cache CacheInvalidator, logger zerolog.Logger) LabelService {
	return &labelService{
		repo:      repo,
		validator: validate,
		cache:     cache,
		logger:    logger.With().Str("component", "label_service").Logger(),
		pick:      rand.Intn,
	}
}

func (s *labelService) List(ctx context.Context) ([]dto.LabelResponse, error) {
	labels, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return dto.NewLabelResponses(labels), nil
}

func (s *labelService) Create(ctx context.Context, payload dto.LabelCreateRequest) (dto.LabelResponse, error) {
	payload.Name = strings.TrimSpace(payload.Name)
	payload.Color = strings.ToLower(strings.TrimSpace(payload.Color))
	if err := s.validator.Struct(payload); err != nil {
		return dto.LabelResponse{}, err
	}

	if _, err := s.repo.GetByName(ctx, payload.Name); err == nil {
		return dto.LabelResponse{}, ErrLabelExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.LabelResponse{}, err
	}

	color := payload.Color
	if color == "" {
		color = LabelPalette[s.pick(len(LabelPalette))]
	}

	label := models.Label{Name: payload.Name, Color: color}
	if err := s.repo.Create(ctx, &label); err != nil {
		return dto.LabelResponse{}, err
	}
	if s.cache != nil {
		s.cache.InvalidateCache(ctx)
	}

	return dto.NewLabelResponse(label), nil
}
