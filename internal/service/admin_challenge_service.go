package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/script-playground-api/internal/dto"
	"github.com/noah-isme/script-playground-api/internal/models"
	"github.com/noah-isme/script-playground-api/internal/observability"
	"github.com/noah-isme/script-playground-api/internal/ordering"
	"github.com/noah-isme/script-playground-api/internal/repository"
)

var (
	// ErrChallengeSlugTaken indicates another challenge already uses the slug.
	ErrChallengeSlugTaken = errors.New("challenge slug already in use")
	// ErrInvalidOrder indicates a reorder request was not a permutation of the current challenges.
	ErrInvalidOrder = errors.New("invalid challenge order")
	// ErrReorderFailed indicates the new order could not be persisted; the previous order is kept.
	ErrReorderFailed = errors.New("failed to persist challenge order")
	// ErrLabelNotFound indicates a referenced label does not exist.
	ErrLabelNotFound = errors.New("label not found")
)

// CacheInvalidator drops cached read models after a write.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context)
}

// AdminChallengeService manages challenges for administrators.
type AdminChallengeService interface {
	List(ctx context.Context) ([]dto.AdminChallengeResponse, error)
	Get(ctx context.Context, id string) (dto.AdminChallengeResponse, error)
	Create(ctx context.Context, payload dto.ChallengeCreateRequest) (dto.AdminChallengeResponse, error)
	Update(ctx context.Context, id string, payload dto.ChallengeUpdateRequest) (dto.AdminChallengeResponse, error)
	Delete(ctx context.Context, id string) error
	// Reorder and Move return the persisted list on failure as well, so
	// callers can roll their optimistic state back.
	Reorder(ctx context.Context, payload dto.ReorderRequest) ([]dto.AdminChallengeResponse, error)
	Move(ctx context.Context, from, to int) ([]dto.AdminChallengeResponse, error)
}

type adminChallengeService struct {
	repo      repository.ChallengeRepository
	validator *validator.Validate
	cache     CacheInvalidator
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewAdminChallengeService constructs the admin challenge service.
func NewAdminChallengeService(repo repository.ChallengeRepository, validate *validator.Validate, cache CacheInvalidator, logger zerolog.Logger) AdminChallengeService {
	return &adminChallengeService{
		repo:      repo,
		validator: validate,
		cache:     cache,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.With().Str("component", "admin_challenge_service").Logger(),
	}
}

func (s *adminChallengeService) List(ctx context.Context) ([]dto.AdminChallengeResponse, error) {
	challenges, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return dto.NewAdminChallengeResponses(challenges), nil
}

func (s *adminChallengeService) Get(ctx context.Context, id string) (dto.AdminChallengeResponse, error) {
	challenge, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.AdminChallengeResponse{}, mapChallengeError(err)
	}
	return dto.NewAdminChallengeResponse(challenge), nil
}

func (s *adminChallengeService) Create(ctx context.Context, payload dto.ChallengeCreateRequest) (dto.AdminChallengeResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AdminChallengeResponse{}, err
	}

	title := strings.TrimSpace(payload.Title)
	challengeSlug, err := s.resolveSlug(ctx, "", payload.Slug, title)
	if err != nil {
		return dto.AdminChallengeResponse{}, err
	}

	order, err := s.repo.NextOrder(ctx)
	if err != nil {
		return dto.AdminChallengeResponse{}, err
	}

	challenge := models.Challenge{
		Title:        title,
		Slug:         challengeSlug,
		Description:  s.sanitizeDescription(payload.Description),
		StarterCode:  payload.StarterCode,
		SolutionCode: payload.SolutionCode,
		Difficulty:   payload.Difficulty,
		Order:        order,
	}

	if err := s.repo.Create(ctx, &challenge, payload.LabelIDs); err != nil {
		return dto.AdminChallengeResponse{}, mapChallengeError(err)
	}
	s.invalidate(ctx)

	created, err := s.repo.GetByID(ctx, challenge.ID)
	if err != nil {
		return dto.AdminChallengeResponse{}, mapChallengeError(err)
	}

	s.logger.Info().Str("challenge_id", created.ID).Str("slug", created.Slug).Msg("challenge created")
	return dto.NewAdminChallengeResponse(created), nil
}

func (s *adminChallengeService) Update(ctx context.Context, id string, payload dto.ChallengeUpdateRequest) (dto.AdminChallengeResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AdminChallengeResponse{}, err
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.AdminChallengeResponse{}, mapChallengeError(err)
	}

	updates := make(map[string]interface{})
	if payload.Title != nil {
		updates["title"] = strings.TrimSpace(*payload.Title)
	}
	if payload.Slug != nil {
		challengeSlug, err := s.resolveSlug(ctx, current.ID, *payload.Slug, current.Title)
		if err != nil {
			return dto.AdminChallengeResponse{}, err
		}
		updates["slug"] = challengeSlug
	}
	if payload.Description != nil {
		updates["description"] = s.sanitizeDescription(*payload.Description)
	}
	if payload.StarterCode != nil {
		updates["starter_code"] = *payload.StarterCode
	}
	if payload.SolutionCode != nil {
		updates["solution_code"] = *payload.SolutionCode
	}
	if payload.Difficulty != nil {
		updates["difficulty"] = *payload.Difficulty
	}

	updated, err := s.repo.Update(ctx, current.ID, updates, payload.LabelIDs)
	if err != nil {
		return dto.AdminChallengeResponse{}, mapChallengeError(err)
	}
	s.invalidate(ctx)

	return dto.NewAdminChallengeResponse(updated), nil
}

func (s *adminChallengeService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapChallengeError(err)
	}
	s.invalidate(ctx)
	s.logger.Info().Str("challenge_id", id).Msg("challenge deleted")
	return nil
}

func (s *adminChallengeService) Reorder(ctx context.Context, payload dto.ReorderRequest) ([]dto.AdminChallengeResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, err
	}

	current, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	var batch []ordering.Position
	switch {
	case len(payload.IDs) > 0:
		batch = ordering.Reindex(payload.IDs)
	case len(payload.Items) > 0:
		batch = make([]ordering.Position, 0, len(payload.Items))
		for _, item := range payload.Items {
			batch = append(batch, ordering.Position{ID: item.ID, Order: item.Order})
		}
	default:
		observability.ReorderOperations().WithLabelValues("invalid").Inc()
		return dto.NewAdminChallengeResponses(current), fmt.Errorf("%w: empty batch", ErrInvalidOrder)
	}

	if err := ordering.Validate(batch, challengeIDs(current)); err != nil {
		observability.ReorderOperations().WithLabelValues("invalid").Inc()
		return dto.NewAdminChallengeResponses(current), fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	return s.persistOrder(ctx, current, batch)
}

func (s *adminChallengeService) Move(ctx context.Context, from, to int) ([]dto.AdminChallengeResponse, error) {
	current, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	moved, err := ordering.Move(challengeIDs(current), from, to)
	if err != nil {
		observability.ReorderOperations().WithLabelValues("invalid").Inc()
		return dto.NewAdminChallengeResponses(current), fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	return s.persistOrder(ctx, current, ordering.Reindex(moved))
}

func (s *adminChallengeService) persistOrder(ctx context.Context, current []models.Challenge, batch []ordering.Position) ([]dto.AdminChallengeResponse, error) {
	items := make([]repository.OrderItem, 0, len(batch))
	for _, position := range batch {
		items = append(items, repository.OrderItem{ID: position.ID, Order: position.Order})
	}

	if err := s.repo.Reorder(ctx, items); err != nil {
		observability.ReorderOperations().WithLabelValues("failed").Inc()
		s.logger.Error().Err(err).Int("items", len(items)).Msg("challenge reorder rolled back")

		persisted, listErr := s.repo.List(ctx)
		if listErr != nil {
			persisted = current
		}
		return dto.NewAdminChallengeResponses(persisted), fmt.Errorf("%w: %v", ErrReorderFailed, err)
	}

	observability.ReorderOperations().WithLabelValues("ok").Inc()
	s.invalidate(ctx)

	reordered, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return dto.NewAdminChallengeResponses(reordered), nil
}

// resolveSlug normalises an explicit slug or derives one from the title.
// Explicit slugs must be free; derived slugs get a numeric suffix until they are.
func (s *adminChallengeService) resolveSlug(ctx context.Context, ownID, requested, title string) (string, error) {
	explicit := strings.TrimSpace(requested) != ""
	base := slug.Make(strings.TrimSpace(requested))
	if !explicit || base == "" {
		base = slug.Make(title)
	}
	if base == "" {
		base = "challenge"
	}

	candidate := base
	for attempt := 2; ; attempt++ {
		existing, err := s.repo.GetBySlug(ctx, candidate)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		if existing.ID == ownID {
			return candidate, nil
		}
		if explicit {
			return "", ErrChallengeSlugTaken
		}
		candidate = fmt.Sprintf("%s-%d", base, attempt)
	}
}

// sanitizeDescription cleans description HTML. Per-language JSON maps are
// cleaned entry by entry and re-encoded.
func (s *adminChallengeService) sanitizeDescription(raw string) string {
	challenge := models.Challenge{Description: raw}
	translations, ok := challenge.DescriptionTranslations()
	if !ok {
		return s.sanitizer.Sanitize(raw)
	}

	cleaned := make(map[string]string, len(translations))
	for language, text := range translations {
		cleaned[strings.ToLower(strings.TrimSpace(language))] = s.sanitizer.Sanitize(text)
	}
	var encoded bytes.Buffer
	encoder := json.NewEncoder(&encoded)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(cleaned); err != nil {
		return s.sanitizer.Sanitize(raw)
	}
	return strings.TrimSpace(encoded.String())
}

func (s *adminChallengeService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateCache(ctx)
	}
}

func challengeIDs(challenges []models.Challenge) []string {
	ids := make([]string, 0, len(challenges))
	for _, challenge := range challenges {
		ids = append(ids, challenge.ID)
	}
	return ids
}

func mapChallengeError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrChallengeNotFound
	case errors.Is(err, repository.ErrLabelNotFound):
		return ErrLabelNotFound
	default:
		return err
	}
}
