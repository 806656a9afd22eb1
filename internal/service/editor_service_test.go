package service

import (
	"context"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/script-playground-api/internal/models"
	"github.com/noah-isme/script-playground-api/internal/repository"
	"github.com/noah-isme/script-playground-api/internal/store"
	"github.com/noah-isme/script-playground-api/internal/workflow"
)

func TestEditorSessionRunAndSubmit(t *testing.T) {
	db := setupServiceDB(t)
	challenge := seedChallenge(t, db, "Log", 0, "<p>log</p>")
	challenges := NewChallengeService(repository.NewChallengeRepository(db), repository.NewSubmissionRepository(db), nil, 0, zerolog.Nop())
	runner := &stubRunner{}
	submissions := NewSubmissionService(repository.NewSubmissionRepository(db), repository.NewChallengeRepository(db), runner, validator.New(), SubmissionEventsConfig{}, zerolog.Nop())
	svc := NewEditorService(challenges, submissions, runner, store.NewMemoryStore(), nil, zerolog.Nop())

	var mu sync.Mutex
	var events []workflow.Event
	sink := func(event workflow.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	}

	ctx := context.Background()
	session, err := svc.Open(ctx, "user-1", challenge.ID, sink)
	require.NoError(t, err)
	defer session.Close()

	snapshot := session.Snapshot()
	require.Equal(t, challenge.StarterCode, snapshot.Code)
	require.Equal(t, workflow.StateInitial, snapshot.State)

	_, err = session.Submit(ctx)
	require.ErrorIs(t, err, workflow.ErrNotRun)

	_, err = session.Run(ctx)
	require.NoError(t, err)
	require.True(t, session.ReadyToSubmit())

	receipt, err := session.Submit(ctx)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusPassed, receipt.Status)

	mu.Lock()
	last := events[len(events)-1]
	mu.Unlock()
	require.Equal(t, workflow.EventCelebrate, last.Type)
	require.Equal(t, receipt.ID, last.SubmissionID)

	_, err = svc.Open(ctx, "user-1", "missing", sink)
	require.ErrorIs(t, err, ErrChallengeNotFound)
}
