package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/noah-isme/script-playground-api/internal/dto"
	"github.com/noah-isme/script-playground-api/internal/i18n"
	"github.com/noah-isme/script-playground-api/internal/observability"
	"github.com/noah-isme/script-playground-api/pkg/ai"
)

var (
	// ErrAssistUnavailable indicates no AI provider credential is configured.
	ErrAssistUnavailable = errors.New("ai assistant is not configured")
	// ErrAssistBlocked indicates the generated answer was withheld by safety settings.
	ErrAssistBlocked = errors.New("the assistant response was blocked by safety settings")
	// ErrAssistFailed indicates the provider call failed.
	ErrAssistFailed = errors.New("the assistant could not generate a response")
)

// Assistant is the AI capability the assist service depends on.
type Assistant interface {
	Explain(ctx context.Context, in ai.CodeContext) (string, error)
	Ask(ctx context.Context, in ai.CodeContext, question string) (string, error)
	Translate(ctx context.Context, fragment, targetLanguage string) (string, error)
}

// AssistService exposes AI explanations, Q&A and translation.
type AssistService interface {
	Explain(ctx context.Context, payload dto.ExplainRequest, acceptLanguage string) (dto.AssistResponse, error)
	Ask(ctx context.Context, payload dto.AskRequest, acceptLanguage string) (dto.AssistResponse, error)
	Translate(ctx context.Context, payload dto.TranslateRequest) (dto.TranslateResponse, error)
}

type assistService struct {
	assistant  Assistant
	challenges ChallengeService
	validator  *validator.Validate
	logger     zerolog.Logger
}

// NewAssistService constructs the assist service. challenges may be nil.
func NewAssistService(assistant Assistant, challenges ChallengeService, validate *validator.Validate, logger zerolog.Logger) AssistService {
	return &assistService{
		assistant:  assistant,
		challenges: challenges,
		validator:  validate,
		logger:     logger.With().Str("component", "assist_service").Logger(),
	}
}

func (s *assistService) Explain(ctx context.Context, payload dto.ExplainRequest, acceptLanguage string) (dto.AssistResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssistResponse{}, err
	}

	name := responseLanguage(payload.Language, acceptLanguage)
	in := ai.CodeContext{
		Code:                 payload.Code,
		ChallengeDescription: s.description(ctx, payload.ChallengeID, payload.ChallengeDescription, payload.Language, acceptLanguage),
		Language:             name,
	}

	text, err := s.assistant.Explain(ctx, in)
	if err != nil {
		return dto.AssistResponse{}, s.fail("explain", err)
	}
	observability.AssistRequests().WithLabelValues("explain", "ok").Inc()
	return dto.AssistResponse{Text: text, Language: name}, nil
}

func (s *assistService) Ask(ctx context.Context, payload dto.AskRequest, acceptLanguage string) (dto.AssistResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssistResponse{}, err
	}

	name := responseLanguage(payload.Language, acceptLanguage)
	in := ai.CodeContext{
		Code:                 payload.Code,
		ChallengeDescription: s.description(ctx, payload.ChallengeID, payload.ChallengeDescription, payload.Language, acceptLanguage),
		Language:             name,
	}

	text, err := s.assistant.Ask(ctx, in, payload.Question)
	if err != nil {
		return dto.AssistResponse{}, s.fail("ask", err)
	}
	observability.AssistRequests().WithLabelValues("ask", "ok").Inc()
	return dto.AssistResponse{Text: text, Language: name}, nil
}

func (s *assistService) Translate(ctx context.Context, payload dto.TranslateRequest) (dto.TranslateResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TranslateResponse{}, err
	}

	name := responseLanguage(payload.TargetLanguage, "")
	translated, err := s.assistant.Translate(ctx, payload.HTML, name)
	if err != nil {
		return dto.TranslateResponse{}, s.fail("translate", err)
	}
	observability.AssistRequests().WithLabelValues("translate", "ok").Inc()
	return dto.TranslateResponse{HTML: translated, Language: name}, nil
}

// description prefers the text sent by the client and otherwise loads the
// challenge description in the request language.
func (s *assistService) description(ctx context.Context, challengeID, provided, preference, acceptLanguage string) string {
	if strings.TrimSpace(provided) != "" || strings.TrimSpace(challengeID) == "" || s.challenges == nil {
		return provided
	}

	challenge, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		s.logger.Debug().Err(err).Str("challenge_id", challengeID).Msg("assist without challenge description")
		return ""
	}
	text, _ := challenge.LocalizedDescription(i18n.Resolve(preference, acceptLanguage))
	return text
}

func (s *assistService) fail(mode string, err error) error {
	switch {
	case errors.Is(err, ai.ErrProviderNotConfigured):
		observability.AssistRequests().WithLabelValues(mode, "unconfigured").Inc()
		return ErrAssistUnavailable
	case errors.Is(err, ai.ErrBlocked):
		observability.AssistRequests().WithLabelValues(mode, "blocked").Inc()
		return ErrAssistBlocked
	case errors.Is(err, ai.ErrEmptyQuestion):
		observability.AssistRequests().WithLabelValues(mode, "invalid").Inc()
		return err
	default:
		observability.AssistRequests().WithLabelValues(mode, "failed").Inc()
		s.logger.Error().Err(err).Str("mode", mode).Msg("assist request failed")
		return fmt.Errorf("%w: %v", ErrAssistFailed, err)
	}
}

// responseLanguage turns a language tag ("fr", "pt-BR") or an English language
// name ("Spanish") into the name used in prompts. Explicit choices are not
// limited to the content languages; only the Accept-Language fallback is.
func responseLanguage(preference, acceptLanguage string) string {
	preference = strings.TrimSpace(preference)
	if preference != "" {
		if _, err := language.Parse(preference); err != nil {
			return preference
		}
		return i18n.DisplayName(preference)
	}
	if strings.TrimSpace(acceptLanguage) != "" {
		return i18n.DisplayName(i18n.Resolve(acceptLanguage))
	}
	return ai.DefaultResponseLanguage
}
