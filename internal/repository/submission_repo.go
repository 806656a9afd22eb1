package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/script-playground-api/internal/models"
)

// DefaultSubmissionHistory is the number of submissions returned per challenge.
const DefaultSubmissionHistory = 10

// SubmissionRepository exposes persistence helpers for submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	ListByUserAndChallenge(ctx context.Context, userID, challengeID string, limit int) ([]models.Submission, error)
	Latest(ctx context.Context, userID, challengeID string) (models.Submission, error)
	PassedChallengeIDs(ctx context.Context, userID string) ([]string, error)
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Omit("Challenge").Create(submission).Error
}

func (r *submissionRepository) ListByUserAndChallenge(ctx context.Context, userID, challengeID string, limit int) ([]models.Submission, error) {
	if limit <= 0 {
		limit = DefaultSubmissionHistory
	}

	var submissions []models.Submission
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND challenge_id = ?", userID, challengeID).
		Order("created_at DESC").
		Limit(limit).
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) Latest(ctx context.Context, userID, challengeID string) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND challenge_id = ?", userID, challengeID).
		Order("created_at DESC").
		Take(&submission).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) PassedChallengeIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("user_id = ? AND status = ?", userID, models.SubmissionStatusPassed).
		Distinct("challenge_id").
		Pluck("challenge_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
