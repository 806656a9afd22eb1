package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubmissionStatus enumerates possible submission states.
const (
	SubmissionStatusPending = "PENDING"
	SubmissionStatusPassed  = "PASSED"
	SubmissionStatusFailed  = "FAILED"
)

// Submission is an immutable snapshot of a learner's code at submit time.
type Submission struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      string    `gorm:"size:64;not null;index:idx_submission_user_challenge" json:"user_id"`
	ChallengeID string    `gorm:"type:varchar(36);not null;index:idx_submission_user_challenge" json:"challenge_id"`
	Code        string    `gorm:"type:text;not null" json:"code"`
	Status      string    `gorm:"size:16;not null" json:"status"`
	Output      *string   `gorm:"type:text" json:"output,omitempty"`
	Error       *string   `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	Challenge   Challenge `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// BeforeCreate assigns a UUID when the caller did not provide one.
func (s *Submission) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Passed reports whether the submission completed the challenge.
func (s Submission) Passed() bool {
	return s.Status == SubmissionStatusPassed
}
