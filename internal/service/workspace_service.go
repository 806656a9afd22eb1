package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/script-playground-api/internal/dto"
	"github.com/noah-isme/script-playground-api/internal/store"
	"github.com/noah-isme/script-playground-api/internal/workflow"
)

// WorkspaceService manages drafts, the auto-run preference and the initial
// editor state for clients that drive the workflow over REST.
type WorkspaceService interface {
	Workspace(ctx context.Context, userID, challengeID string) (dto.WorkspaceResponse, error)
	GetDraft(ctx context.Context, userID, challengeID string) (dto.DraftResponse, error)
	SaveDraft(ctx context.Context, userID, challengeID, code string) (dto.DraftResponse, error)
	DeleteDraft(ctx context.Context, userID, challengeID string) error
	AutoRun(ctx context.Context, userID string) (dto.AutoRunResponse, error)
	SetAutoRun(ctx context.Context, userID string, enabled bool) (dto.AutoRunResponse, error)
}

type workspaceService struct {
	challenges ChallengeService
	history    workflow.History
	kv         store.KVStore
	logger     zerolog.Logger
}

// NewWorkspaceService constructs the workspace service.
func NewWorkspaceService(challenges ChallengeService, history workflow.History, kv store.KVStore, logger zerolog.Logger) WorkspaceService {
	return &workspaceService{
		challenges: challenges,
		history:    history,
		kv:         kv,
		logger:     logger.With().Str("component", "workspace_service").Logger(),
	}
}

func (s *workspaceService) Workspace(ctx context.Context, userID, challengeID string) (dto.WorkspaceResponse, error) {
	challenge, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return dto.WorkspaceResponse{}, err
	}

	code, source := workflow.ResolveInitialCode(ctx, s.kv, s.history, userID, challenge.ID, challenge.StarterCode, s.logger)
	return dto.WorkspaceResponse{
		ChallengeID: challenge.ID,
		Code:        code,
		Source:      string(source),
		AutoRun:     workflow.LoadAutoRun(ctx, s.kv, userID, s.logger),
	}, nil
}

func (s *workspaceService) GetDraft(ctx context.Context, userID, challengeID string) (dto.DraftResponse, error) {
	challenge, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return dto.DraftResponse{}, err
	}

	code, err := s.kv.Get(ctx, store.DraftKey(userID, challenge.ID))
	if errors.Is(err, store.ErrNotFound) {
		return dto.DraftResponse{ChallengeID: challenge.ID}, nil
	}
	if err != nil {
		return dto.DraftResponse{}, err
	}
	return dto.DraftResponse{ChallengeID: challenge.ID, Code: code, Exists: code != ""}, nil
}

func (s *workspaceService) SaveDraft(ctx context.Context, userID, challengeID, code string) (dto.DraftResponse, error) {
	if len(code) > dto.MaxCodeBytes {
		return dto.DraftResponse{}, ErrCodeTooLarge
	}
	challenge, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return dto.DraftResponse{}, err
	}

	key := store.DraftKey(userID, challenge.ID)
	if code == "" {
		if err := s.kv.Remove(ctx, key); err != nil {
			return dto.DraftResponse{}, err
		}
		return dto.DraftResponse{ChallengeID: challenge.ID}, nil
	}
	if err := s.kv.Set(ctx, key, code); err != nil {
		return dto.DraftResponse{}, err
	}
	return dto.DraftResponse{ChallengeID: challenge.ID, Code: code, Exists: true}, nil
}

func (s *workspaceService) DeleteDraft(ctx context.Context, userID, challengeID string) error {
	challenge, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return err
	}
	return s.kv.Remove(ctx, store.DraftKey(userID, challenge.ID))
}

func (s *workspaceService) AutoRun(ctx context.Context, userID string) (dto.AutoRunResponse, error) {
	raw, err := s.kv.Get(ctx, store.AutoRunKey(userID))
	if errors.Is(err, store.ErrNotFound) {
		return dto.AutoRunResponse{}, nil
	}
	if err != nil {
		return dto.AutoRunResponse{}, err
	}
	enabled, parseErr := strconv.ParseBool(strings.TrimSpace(raw))
	return dto.AutoRunResponse{Enabled: parseErr == nil && enabled}, nil
}

func (s *workspaceService) SetAutoRun(ctx context.Context, userID string, enabled bool) (dto.AutoRunResponse, error) {
	if err := s.kv.Set(ctx, store.AutoRunKey(userID), strconv.FormatBool(enabled)); err != nil {
		return dto.AutoRunResponse{}, err
	}
	return dto.AutoRunResponse{Enabled: enabled}, nil
}
