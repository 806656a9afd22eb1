package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "playground",
		Subsystem: "ai",
		Name:      "generation_duration_seconds",
		Help:      "Duration of AI generation requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playground",
		Subsystem: "ai",
		Name:      "generation_failures_total",
		Help:      "Number of AI generation failures by reason",
	}, []string{"model", "reason"})
)

// OpenAIConfig defines configuration options for the OpenAI provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Moderation checks generated text against the request safety settings.
	Moderation bool
	Logger     zerolog.Logger
}

// OpenAIProvider implements Provider against the OpenAI chat completion API.
type OpenAIProvider struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIProvider builds a provider. A missing API key yields a provider
// whose every call fails with ErrProviderNotConfigured.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	var client *openai.Client
	if strings.TrimSpace(cfg.APIKey) != "" {
		config := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			config.BaseURL = cfg.BaseURL
		}
		client = openai.NewClientWithConfig(config)
	}

	return &OpenAIProvider{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/script-playground-api/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_provider").Logger(),
	}
}

// Configured reports whether a credential is present.
func (p *OpenAIProvider) Configured() bool {
	return p.client != nil
}

// Generate sends one chat completion and applies the safety settings to the result.
func (p *OpenAIProvider) Generate(parent context.Context, req GenerateRequest) (string, error) {
	if p.client == nil {
		return "", ErrProviderNotConfigured
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	ctx, span := p.tracer.Start(parent, "openai.generate", trace.WithAttributes(
		attribute.String("model", model),
		attribute.Float64("temperature", float64(req.Temperature)),
	))
	defer span.End()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Content,
	})

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxOutputTokens,
	})
	aiDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err != nil {
		p.fail(span, model, "request", err)
		return "", fmt.Errorf("openai generate: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		p.fail(span, model, "empty", ErrEmptyResponse)
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)

	if p.cfg.Moderation && len(req.Safety) > 0 {
		if err := p.moderate(ctx, text, req.Safety); err != nil {
			reason := "moderation"
			if errors.Is(err, ErrBlocked) {
				reason = "blocked"
			}
			p.fail(span, model, reason, err)
			return "", err
		}
	}

	span.SetAttributes(attribute.Int("usage.total_tokens", resp.Usage.TotalTokens))
	return text, nil
}

func (p *OpenAIProvider) moderate(ctx context.Context, text string, settings []SafetySetting) error {
	resp, err := p.client.Moderations(ctx, openai.ModerationRequest{Input: text})
	if err != nil {
		return fmt.Errorf("openai moderation: %w", err)
	}

	for _, result := range resp.Results {
		scores := categoryScores(result.CategoryScores)
		for _, setting := range settings {
			cutoff, enabled := setting.Threshold.Cutoff()
			if !enabled {
				continue
			}
			if score := scores[setting.Category]; score >= cutoff {
				p.logger.Warn().
					Str("category", string(setting.Category)).
					Float64("score", score).
					Float64("cutoff", cutoff).
					Msg("generated text blocked")
				return ErrBlocked
			}
		}
	}
	return nil
}

func categoryScores(scores openai.ResultCategoryScores) map[HarmCategory]float64 {
	return map[HarmCategory]float64{
		HarmCategoryHarassment: maxScore(scores.Harassment, scores.HarassmentThreatening),
		HarmCategoryHate:       maxScore(scores.Hate, scores.HateThreatening),
		HarmCategorySexual:     maxScore(scores.Sexual, scores.SexualMinors),
		HarmCategoryDangerous:  maxScore(scores.Violence, scores.SelfHarm),
	}
}

func maxScore(values ...float32) float64 {
	var highest float32
	for _, value := range values {
		if value > highest {
			highest = value
		}
	}
	return float64(highest)
}

func (p *OpenAIProvider) fail(span trace.Span, model, reason string, err error) {
	aiFailures.WithLabelValues(model, reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
