package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/script-playground-api/internal/dto"
	"github.com/noah-isme/script-playground-api/internal/models"
	"github.com/noah-isme/script-playground-api/internal/observability"
	"github.com/noah-isme/script-playground-api/internal/repository"
	"github.com/noah-isme/script-playground-api/internal/workflow"
	"github.com/noah-isme/script-playground-api/pkg/sandbox"
)

var (
	// ErrSandboxUnavailable indicates the code runner could not execute at all.
	ErrSandboxUnavailable = errors.New("code runner unavailable")
	// ErrCodeTooLarge indicates submitted code exceeds dto.MaxCodeBytes.
	ErrCodeTooLarge = errors.New("code exceeds size limit")
)

const submissionBufferSize = 16

// SubmissionService runs learner code and stores submissions.
type SubmissionService interface {
	Run(ctx context.Context, challengeID, code string) (dto.RunResponse, error)
	Submit(ctx context.Context, userID string, payload dto.SubmissionCreateRequest) (dto.SubmissionResult, error)
	History(ctx context.Context, userID, challengeID string) ([]dto.SubmissionResponse, error)
	Subscribe(userID string) (<-chan dto.SubmissionEvent, func())
	Start(ctx context.Context)

	workflow.Submitter
	workflow.History
}

// SubmissionEventsConfig names the broker channels submission events are fanned out on.
// Either transport may be nil.
type SubmissionEventsConfig struct {
	Redis       *redis.Client
	NATS        *nats.Conn
	ChannelBase string
}

type submissionService struct {
	submissions repository.SubmissionRepository
	challenges  repository.ChallengeRepository
	runner      sandbox.Runner
	validator   *validator.Validate
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	broker      *submissionBroker
	nodeID      string
	tracer      trace.Tracer
	logger      zerolog.Logger
}

type submissionEnvelope struct {
	Source string              `json:"source"`
	Event  dto.SubmissionEvent `json:"event"`
	SentAt time.Time           `json:"sent_at"`
}

type submissionBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan dto.SubmissionEvent]struct{}
}

// NewSubmissionService constructs the submission service.
func NewSubmissionService(submissions repository.SubmissionRepository, challenges repository.ChallengeRepository, runner sandbox.Runner, validate *validator.Validate, events SubmissionEventsConfig, logger zerolog.Logger) SubmissionService {
	stream := ""
	subject := ""
	if events.ChannelBase != "" {
		stream = events.ChannelBase + ":submissions"
		subject = strings.ReplaceAll(events.ChannelBase, ":", ".") + ".submissions"
	}

	return &submissionService{
		submissions: submissions,
		challenges:  challenges,
		runner:      runner,
		validator:   validate,
		redis:       events.Redis,
		redisStream: stream,
		nats:        events.NATS,
		natsSubject: subject,
		broker: &submissionBroker{
			subscribers: make(map[string]map[chan dto.SubmissionEvent]struct{}),
		},
		nodeID: uuid.NewString(),
		tracer: otel.Tracer("github.com/noah-isme/script-playground-api/internal/service/submission"),
		logger: logger.With().Str("component", "submission_service").Logger(),
	}
}

func (s *submissionService) Run(ctx context.Context, challengeID, code string) (dto.RunResponse, error) {
	if len(code) > dto.MaxCodeBytes {
		return dto.RunResponse{}, ErrCodeTooLarge
	}
	if _, err := s.challenge(ctx, challengeID); err != nil {
		return dto.RunResponse{}, err
	}

	result, err := s.execute(ctx, code)
	if err != nil {
		return dto.RunResponse{}, err
	}
	return dto.NewRunResponse(result), nil
}

// Submit re-executes the code server-side so the stored code, output and
// status always describe the same run.
func (s *submissionService) Submit(ctx context.Context, userID string, payload dto.SubmissionCreateRequest) (dto.SubmissionResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResult{}, err
	}
	if _, err := s.challenge(ctx, payload.ChallengeID); err != nil {
		return dto.SubmissionResult{}, err
	}

	result, err := s.execute(ctx, payload.Code)
	if err != nil {
		return dto.SubmissionResult{}, err
	}

	submission, err := s.store(ctx, workflow.Attempt{
		UserID:      userID,
		ChallengeID: payload.ChallengeID,
		Code:        payload.Code,
		Passed:      result.Success && result.Error == "",
		Output:      result.Output(),
		Error:       result.Error,
	})
	if err != nil {
		return dto.SubmissionResult{}, err
	}

	return dto.SubmissionResult{
		Submission: dto.NewSubmissionResponse(submission),
		Run:        dto.NewRunResponse(result),
		Celebrate:  submission.Passed(),
	}, nil
}

// Persist stores an attempt produced by an editor session.
func (s *submissionService) Persist(ctx context.Context, attempt workflow.Attempt) (workflow.Receipt, error) {
	if _, err := s.challenge(ctx, attempt.ChallengeID); err != nil {
		return workflow.Receipt{}, err
	}
	submission, err := s.store(ctx, attempt)
	if err != nil {
		return workflow.Receipt{}, err
	}
	return workflow.Receipt{ID: submission.ID, Status: submission.Status}, nil
}

func (s *submissionService) LatestCode(ctx context.Context, userID, challengeID string) (string, bool, error) {
	submission, err := s.submissions.Latest(ctx, userID, challengeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return submission.Code, true, nil
}

func (s *submissionService) History(ctx context.Context, userID, challengeID string) ([]dto.SubmissionResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}
	submissions, err := s.submissions.ListByUserAndChallenge(ctx, userID, challengeID, repository.DefaultSubmissionHistory)
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionResponses(submissions), nil
}

func (s *submissionService) Subscribe(userID string) (<-chan dto.SubmissionEvent, func()) {
	channel := make(chan dto.SubmissionEvent, submissionBufferSize)
	s.broker.subscribe(userID, channel)
	return channel, func() { s.broker.unsubscribe(userID, channel) }
}

// Start relays events published by other nodes. NATS is preferred over
// Redis pub/sub when both are configured.
func (s *submissionService) Start(ctx context.Context) {
	switch {
	case s.nats != nil && s.natsSubject != "":
		s.consumeNATS(ctx)
	case s.redis != nil && s.redisStream != "":
		go s.consumeRedis(ctx)
	}
}

func (s *submissionService) challenge(ctx context.Context, id string) (models.Challenge, error) {
	challenge, err := s.challenges.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Challenge{}, ErrChallengeNotFound
		}
		return models.Challenge{}, err
	}
	return challenge, nil
}

func (s *submissionService) execute(ctx context.Context, code string) (sandbox.Result, error) {
	result, err := s.runner.Execute(ctx, code)
	if err != nil {
		observability.RunnerExecutions().WithLabelValues("unavailable").Inc()
		s.logger.Error().Err(err).Msg("code runner failed")
		return sandbox.Result{}, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
	}

	outcome := "success"
	switch {
	case result.TimedOut:
		outcome = "timeout"
	case !result.Success || result.Error != "":
		outcome = "error"
	}
	observability.RunnerExecutions().WithLabelValues(outcome).Inc()
	return result, nil
}

func (s *submissionService) store(ctx context.Context, attempt workflow.Attempt) (models.Submission, error) {
	status := models.SubmissionStatusFailed
	if attempt.Passed {
		status = models.SubmissionStatusPassed
	}

	spanCtx, span := s.tracer.Start(ctx, "submissions.persist", trace.WithAttributes(
		attribute.String("submission.challenge_id", attempt.ChallengeID),
		attribute.String("submission.status", status),
	))
	defer span.End()

	submission := models.Submission{
		UserID:      attempt.UserID,
		ChallengeID: attempt.ChallengeID,
		Code:        attempt.Code,
		Status:      status,
		Output:      optionalText(attempt.Output),
		Error:       optionalText(attempt.Error),
	}
	if err := s.submissions.Create(spanCtx, &submission); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.Submission{}, err
	}
	observability.Submissions().WithLabelValues(status).Inc()

	event := dto.NewSubmissionEvent(submission)
	s.broker.broadcast(event)
	observability.SubmissionEvents().WithLabelValues("local").Inc()
	if err := s.publish(spanCtx, event); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish submission event to broker")
	}

	s.logger.Info().
		Str("submission_id", submission.ID).
		Str("challenge_id", submission.ChallengeID).
		Str("status", status).
		Msg("submission stored")
	return submission, nil
}

func (s *submissionService) publish(ctx context.Context, event dto.SubmissionEvent) error {
	payload, err := json.Marshal(submissionEnvelope{
		Source: s.nodeID,
		Event:  event,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	switch {
	case s.nats != nil && s.natsSubject != "":
		return s.nats.Publish(s.natsSubject, payload)
	case s.redis != nil && s.redisStream != "":
		return s.redis.Publish(ctx, s.redisStream, payload).Err()
	}
	return nil
}

func (s *submissionService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("submission redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *submissionService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats submissions subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain submission nats subscription")
		}
	}()
}

func (s *submissionService) handleEvent(payload []byte) {
	var envelope submissionEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid submission event payload")
		return
	}
	if envelope.Source == s.nodeID {
		return
	}

	observability.SubmissionEvents().WithLabelValues("remote").Inc()
	s.broker.broadcast(envelope.Event)
}

func optionalText(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func (b *submissionBroker) subscribe(userID string, ch chan dto.SubmissionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[userID]; !exists {
		b.subscribers[userID] = make(map[chan dto.SubmissionEvent]struct{})
	}
	b.subscribers[userID][ch] = struct{}{}
}

func (b *submissionBroker) unsubscribe(userID string, ch chan dto.SubmissionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[userID]; ok {
		if _, found := subscribers[ch]; !found {
			return
		}
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, userID)
		}
	}
}

func (b *submissionBroker) broadcast(event dto.SubmissionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.UserID] {
		select {
		case ch <- event:
		default:
		}
	}
}
