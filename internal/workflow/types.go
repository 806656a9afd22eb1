package workflow

import (
	"context"
	"errors"

	"github.com/noah-isme/script-playground-api/pkg/sandbox"
)

// State is the editor session's position in the run/submit lifecycle.
type State string

const (
	StateInitial    State = "initial"
	StateRanFailed  State = "ran-failed"
	StateRanSuccess State = "ran-success"
	StateSubmitted  State = "submitted"
)

// EventType names the notifications a session pushes to its transport.
type EventType string

const (
	EventState        EventType = "state"
	EventOutput       EventType = "output"
	EventCelebrate    EventType = "celebrate"
	EventAcknowledged EventType = "acknowledged"
	EventError        EventType = "error"
)

// Source tells where the initial editor content came from.
type Source string

const (
	SourceDraft      Source = "draft"
	SourceSubmission Source = "submission"
	SourceStarter    Source = "starter"
)

var (
	// ErrNotRun is returned by Submit before any run finished in this session.
	ErrNotRun = errors.New("code must be run before submitting")
	// ErrResetNotConfirmed is returned by Reset without explicit confirmation.
	ErrResetNotConfirmed = errors.New("reset requires confirmation")
	// ErrSubmitInProgress is returned while a previous submit is still being persisted.
	ErrSubmitInProgress = errors.New("a submission is already in progress")
	// ErrSuperseded is returned when a run finished after a newer run, reset or close.
	ErrSuperseded = errors.New("run result superseded by newer activity")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
)

// Event is pushed to the session sink after every observable change.
type Event struct {
	Type          EventType       `json:"type"`
	State         State           `json:"state,omitempty"`
	Code          *string         `json:"code,omitempty"`
	Source        Source          `json:"source,omitempty"`
	Result        *sandbox.Result `json:"result,omitempty"`
	ReadyToSubmit bool            `json:"ready_to_submit"`
	AutoRun       bool            `json:"auto_run"`
	SubmissionID  string          `json:"submission_id,omitempty"`
	Message       string          `json:"message,omitempty"`
}

// Attempt is what gets persisted when a learner submits.
type Attempt struct {
	UserID      string
	ChallengeID string
	Code        string
	Passed      bool
	Output      string
	Error       string
}

// Receipt identifies a persisted attempt.
type Receipt struct {
	ID     string
	Status string
}

// Submitter persists an attempt whose output was produced from exactly its code.
type Submitter interface {
	Persist(ctx context.Context, attempt Attempt) (Receipt, error)
}

// History returns the code of the learner's most recent submission, if any.
type History interface {
	LatestCode(ctx context.Context, userID, challengeID string) (string, bool, error)
}

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	State         State           `json:"state"`
	Code          string          `json:"code"`
	Source        Source          `json:"source"`
	AutoRun       bool            `json:"auto_run"`
	ReadyToSubmit bool            `json:"ready_to_submit"`
	HasRun        bool            `json:"has_run"`
	LastResult    *sandbox.Result `json:"last_result,omitempty"`
}
