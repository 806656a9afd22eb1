package dto

import (
	"time"

	"github.com/noah-isme/script-playground-api/internal/models"
	"github.com/noah-isme/script-playground-api/pkg/sandbox"
)

// MaxCodeBytes bounds code accepted by run, submit and draft endpoints.
const MaxCodeBytes = 65536

// RunRequest executes code without persisting anything.
type RunRequest struct {
	Code string `json:"code" validate:"max=65536"`
}

// RunResponse reports one sandboxed execution.
type RunResponse struct {
	Logs       []string `json:"logs"`
	Error      string   `json:"error,omitempty"`
	Success    bool     `json:"success"`
	TimedOut   bool     `json:"timed_out"`
	Truncated  bool     `json:"truncated"`
	DurationMs int64    `json:"duration_ms"`
}

// SubmissionCreateRequest submits code for a challenge; the server runs it before storing.
type SubmissionCreateRequest struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
	Code        string `json:"code" validate:"max=65536"`
}

// SubmissionResponse represents a stored submission.
type SubmissionResponse struct {
	ID          string    `json:"id"`
	ChallengeID string    `json:"challenge_id"`
	Code        string    `json:"code"`
	Status      string    `json:"status"`
	Output      *string   `json:"output,omitempty"`
	Error       *string   `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SubmissionResult pairs a stored submission with the run that produced it.
type SubmissionResult struct {
	Submission SubmissionResponse `json:"submission"`
	Run        RunResponse        `json:"run"`
	Celebrate  bool               `json:"celebrate"`
}

// DraftRequest stores in-progress code.
type DraftRequest struct {
	Code string `json:"code" validate:"max=65536"`
}

// DraftResponse returns the stored draft, if any.
type DraftResponse struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
	Exists      bool   `json:"exists"`
}

// AutoRunRequest toggles the auto-run preference.
type AutoRunRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// AutoRunResponse reports the auto-run preference.
type AutoRunResponse struct {
	Enabled bool `json:"enabled"`
}

// WorkspaceResponse is the resolved initial editor state for a challenge.
type WorkspaceResponse struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
	Source      string `json:"source"`
	AutoRun     bool   `json:"auto_run"`
}

// NewRunResponse converts a sandbox result.
func NewRunResponse(result sandbox.Result) RunResponse {
	logs := result.Logs
	if logs == nil {
		logs = []string{}
	}
	return RunResponse{
		Logs:       logs,
		Error:      result.Error,
		Success:    result.Success,
		TimedOut:   result.TimedOut,
		Truncated:  result.Truncated,
		DurationMs: result.Duration.Milliseconds(),
	}
}

// NewSubmissionResponse builds a submission DTO.
func NewSubmissionResponse(submission models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:          submission.ID,
		ChallengeID: submission.ChallengeID,
		Code:        submission.Code,
		Status:      submission.Status,
		Output:      submission.Output,
		Error:       submission.Error,
		CreatedAt:   submission.CreatedAt,
	}
}

// NewSubmissionResponses builds submission DTOs preserving order.
func NewSubmissionResponses(submissions []models.Submission) []SubmissionResponse {
	items := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		items = append(items, NewSubmissionResponse(submission))
	}
	return items
}

// SubmissionEvent announces a stored submission to the submitting user's other clients.
type SubmissionEvent struct {
	SubmissionID string    `json:"submission_id"`
	UserID       string    `json:"user_id"`
	ChallengeID  string    `json:"challenge_id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewSubmissionEvent builds the event for a stored submission.
func NewSubmissionEvent(submission models.Submission) SubmissionEvent {
	return SubmissionEvent{
		SubmissionID: submission.ID,
		UserID:       submission.UserID,
		ChallengeID:  submission.ChallengeID,
		Status:       submission.Status,
		CreatedAt:    submission.CreatedAt,
	}
}
