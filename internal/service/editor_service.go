package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/script-playground-api/internal/store"
	"github.com/noah-isme/script-playground-api/internal/workflow"
	"github.com/noah-isme/script-playground-api/pkg/sandbox"
)

// EditorService opens workflow sessions for live editor connections.
type EditorService interface {
	Open(ctx context.Context, userID, challengeID string, sink func(workflow.Event)) (*workflow.Session, error)
}

type editorService struct {
	challenges  ChallengeService
	submissions SubmissionService
	runner      sandbox.Runner
	kv          store.KVStore
	clock       workflow.Clock
	logger      zerolog.Logger
}

// NewEditorService constructs the editor service. A nil clock uses wall-clock timers.
func NewEditorService(challenges ChallengeService, submissions SubmissionService, runner sandbox.Runner, kv store.KVStore, clock workflow.Clock, logger zerolog.Logger) EditorService {
	if clock == nil {
		clock = workflow.RealClock{}
	}
	return &editorService{
		challenges:  challenges,
		submissions: submissions,
		runner:      runner,
		kv:          kv,
		clock:       clock,
		logger:      logger,
	}
}

func (s *editorService) Open(ctx context.Context, userID, challengeID string, sink func(workflow.Event)) (*workflow.Session, error) {
	challenge, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	return workflow.Open(ctx, workflow.Config{
		UserID:      userID,
		ChallengeID: challenge.ID,
		StarterCode: challenge.StarterCode,
		Runner:      s.runner,
		Store:       s.kv,
		Submitter:   s.submissions,
		History:     s.submissions,
		Clock:       s.clock,
		Sink:        sink,
		Logger:      s.logger,
	})
}
