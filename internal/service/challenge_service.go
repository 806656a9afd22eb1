package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/script-playground-api/internal/dto"
	"github.com/noah-isme/script-playground-api/internal/i18n"
	"github.com/noah-isme/script-playground-api/internal/models"
	"github.com/noah-isme/script-playground-api/internal/observability"
	"github.com/noah-isme/script-playground-api/internal/repository"
)

// ErrChallengeNotFound indicates the requested challenge does not exist.
var ErrChallengeNotFound = errors.New("challenge not found")

const challengeListCacheKey = "playground:challenges:v1"

// ChallengeService exposes the public browsing use cases.
type ChallengeService interface {
	List(ctx context.Context, userID string) ([]dto.ChallengeSummary, error)
	GetBySlug(ctx context.Context, slug, userID, language string) (dto.ChallengeDetail, error)
	Get(ctx context.Context, id string) (models.Challenge, error)
	InvalidateCache(ctx context.Context)
}

type challengeService struct {
	challenges  repository.ChallengeRepository
	submissions repository.SubmissionRepository
	cache       *redis.Client
	ttl         time.Duration
	logger      zerolog.Logger
}

// NewChallengeService constructs the browsing service. A nil cache disables list caching.
func NewChallengeService(challenges repository.ChallengeRepository, submissions repository.SubmissionRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ChallengeService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &challengeService{
		challenges:  challenges,
		submissions: submissions,
		cache:       cache,
		ttl:         ttl,
		logger:      logger.With().Str("component", "challenge_service").Logger(),
	}
}

func (s *challengeService) List(ctx context.Context, userID string) ([]dto.ChallengeSummary, error) {
	items, ok := s.fetchCache(ctx)
	if !ok {
		challenges, err := s.challenges.List(ctx)
		if err != nil {
			observability.ChallengeCache().WithLabelValues("error").Inc()
			return nil, err
		}

		items = make([]dto.ChallengeSummary, 0, len(challenges))
		for _, challenge := range challenges {
			items = append(items, dto.NewChallengeSummary(challenge))
		}
		s.writeCache(ctx, items)
	}

	completed, err := s.completedSet(ctx, userID)
	if err != nil {
		return nil, err
	}
	for idx := range items {
		_, items[idx].Completed = completed[items[idx].ID]
	}

	return items, nil
}

func (s *challengeService) GetBySlug(ctx context.Context, slug, userID, language string) (dto.ChallengeDetail, error) {
	challenge, err := s.challenges.GetBySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ChallengeDetail{}, ErrChallengeNotFound
		}
		return dto.ChallengeDetail{}, err
	}

	neighbours, err := s.challenges.Neighbours(ctx, challenge.Order)
	if err != nil {
		return dto.ChallengeDetail{}, err
	}

	completed, err := s.completedSet(ctx, userID)
	if err != nil {
		return dto.ChallengeDetail{}, err
	}

	if !i18n.IsSupported(language) {
		language = i18n.Default
	}
	description, found := challenge.LocalizedDescription(language)
	if !found {
		description = MissingTranslationNotice(language)
	}

	summary := dto.NewChallengeSummary(challenge)
	_, summary.Completed = completed[challenge.ID]

	return dto.ChallengeDetail{
		ChallengeSummary:   summary,
		Description:        description,
		Language:           language,
		TranslationMissing: !found,
		StarterCode:        challenge.StarterCode,
		PrevSlug:           neighbours.PrevSlug,
		NextSlug:           neighbours.NextSlug,
	}, nil
}

func (s *challengeService) Get(ctx context.Context, id string) (models.Challenge, error) {
	challenge, err := s.challenges.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Challenge{}, ErrChallengeNotFound
		}
		return models.Challenge{}, err
	}
	return challenge, nil
}

func (s *challengeService) InvalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, challengeListCacheKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate challenge cache")
	}
}

// MissingTranslationNotice is shown in place of a description that has no
// entry for the requested language.
func MissingTranslationNotice(language string) string {
	return fmt.Sprintf(`<div class="p-4 border border-yellow-200 bg-yellow-50 text-yellow-800 rounded-md">
<p class="font-medium">Translation missing</p>
<p class="text-sm">This challenge has not been translated to %s yet.</p>
</div>`, i18n.DisplayName(language))
}

func (s *challengeService) completedSet(ctx context.Context, userID string) (map[string]struct{}, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || s.submissions == nil {
		return map[string]struct{}{}, nil
	}

	ids, err := s.submissions.PassedChallengeIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (s *challengeService) fetchCache(ctx context.Context) ([]dto.ChallengeSummary, bool) {
	if s.cache == nil {
		return nil, false
	}
	payload, err := s.cache.Get(ctx, challengeListCacheKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read challenge cache")
		}
		observability.ChallengeCache().WithLabelValues("miss").Inc()
		return nil, false
	}

	var items []dto.ChallengeSummary
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		s.logger.Warn().Err(err).Msg("failed to decode challenge cache")
		observability.ChallengeCache().WithLabelValues("miss").Inc()
		return nil, false
	}
	observability.ChallengeCache().WithLabelValues("hit").Inc()
	return items, true
}

func (s *challengeService) writeCache(ctx context.Context, items []dto.ChallengeSummary) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(items)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode challenge cache")
		return
	}
	if err := s.cache.Set(ctx, challengeListCacheKey, payload, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store challenge cache")
	}
}
