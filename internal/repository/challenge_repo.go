package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/script-playground-api/internal/models"
)

// ErrReorderMismatch indicates a reorder batch referenced a challenge that does not exist.
var ErrReorderMismatch = errors.New("reorder batch references unknown challenge")

// OrderItem pairs a challenge with its new display position.
type OrderItem struct {
	ID    string
	Order int
}

// Neighbours carries the slugs of the challenges around a given position.
type Neighbours struct {
	PrevSlug string
	NextSlug string
}

// ChallengeRepository exposes persistence operations for challenges.
type ChallengeRepository interface {
	List(ctx context.Context) ([]models.Challenge, error)
	GetByID(ctx context.Context, id string) (models.Challenge, error)
	GetBySlug(ctx context.Context, slug string) (models.Challenge, error)
	Neighbours(ctx context.Context, order int) (Neighbours, error)
	NextOrder(ctx context.Context) (int, error)
	Create(ctx context.Context, challenge *models.Challenge, labelIDs []string) error
	Update(ctx context.Context, id string, updates map[string]interface{}, labelIDs *[]string) (models.Challenge, error)
	Delete(ctx context.Context, id string) error
	Reorder(ctx context.Context, items []OrderItem) error
	Count(ctx context.Context) (int64, error)
}

// NewChallengeRepository constructs a challenge repository.
func NewChallengeRepository(db *gorm.DB) ChallengeRepository {
	return &challengeRepository{db: db}
}

type challengeRepository struct {
	db *gorm.DB
}

var orderColumn = clause.Column{Name: "order"}

func (r *challengeRepository) List(ctx context.Context) ([]models.Challenge, error) {
	var challenges []models.Challenge
	err := r.db.WithContext(ctx).
		Preload("Labels", func(db *gorm.DB) *gorm.DB { return db.Order("name ASC") }).
		Order(clause.OrderByColumn{Column: orderColumn}).
		Order("created_at ASC").
		Find(&challenges).Error
	if err != nil {
		return nil, err
	}
	return challenges, nil
}

func (r *challengeRepository) GetByID(ctx context.Context, id string) (models.Challenge, error) {
	var challenge models.Challenge
	if err := r.db.WithContext(ctx).Preload("Labels").First(&challenge, "id = ?", id).Error; err != nil {
		return models.Challenge{}, err
	}
	return challenge, nil
}

func (r *challengeRepository) GetBySlug(ctx context.Context, slug string) (models.Challenge, error) {
	var challenge models.Challenge
	if err := r.db.WithContext(ctx).Preload("Labels").First(&challenge, "slug = ?", slug).Error; err != nil {
		return models.Challenge{}, err
	}
	return challenge, nil
}

func (r *challengeRepository) Neighbours(ctx context.Context, order int) (Neighbours, error) {
	var result Neighbours

	var prev models.Challenge
	err := r.db.WithContext(ctx).
		Select("slug").
		Where(clause.Lt{Column: orderColumn, Value: order}).
		Order(clause.OrderByColumn{Column: orderColumn, Desc: true}).
		Take(&prev).Error
	switch {
	case err == nil:
		result.PrevSlug = prev.Slug
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return Neighbours{}, err
	}

	var next models.Challenge
	err = r.db.WithContext(ctx).
		Select("slug").
		Where(clause.Gt{Column: orderColumn, Value: order}).
		Order(clause.OrderByColumn{Column: orderColumn}).
		Take(&next).Error
	switch {
	case err == nil:
		result.NextSlug = next.Slug
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return Neighbours{}, err
	}

	return result, nil
}

func (r *challengeRepository) NextOrder(ctx context.Context) (int, error) {
	var last models.Challenge
	err := r.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: orderColumn, Desc: true}).
		Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return last.Order + 1, nil
}

func (r *challengeRepository) Create(ctx context.Context, challenge *models.Challenge, labelIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		labels, err := findLabels(tx, labelIDs)
		if err != nil {
			return err
		}
		challenge.Labels = labels
		return tx.Create(challenge).Error
	})
}

func (r *challengeRepository) Update(ctx context.Context, id string, updates map[string]interface{}, labelIDs *[]string) (models.Challenge, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var challenge models.Challenge
		if err := tx.First(&challenge, "id = ?", id).Error; err != nil {
			return err
		}

		if len(updates) > 0 {
			if err := tx.Model(&challenge).Updates(updates).Error; err != nil {
				return err
			}
		}

		if labelIDs != nil {
			labels, err := findLabels(tx, *labelIDs)
			if err != nil {
				return err
			}
			if err := tx.Model(&challenge).Association("Labels").Replace(labels); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Challenge{}, err
	}

	return r.GetByID(ctx, id)
}

func (r *challengeRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		challenge := models.Challenge{ID: id}
		if err := tx.Model(&challenge).Association("Labels").Clear(); err != nil {
			return err
		}
		if err := tx.Where("challenge_id = ?", id).Delete(&models.Submission{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Challenge{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// Reorder applies the whole batch inside one transaction so a failure on any
// row leaves the previous order untouched.
func (r *challengeRepository) Reorder(ctx context.Context, items []OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			result := tx.Model(&models.Challenge{}).
				Where("id = ?", item.ID).
				UpdateColumn("order", item.Order)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", ErrReorderMismatch, item.ID)
			}
		}
		return nil
	})
}

func (r *challengeRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Challenge{}).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func findLabels(tx *gorm.DB, ids []string) ([]models.Label, error) {
	if len(ids) == 0 {
		return []models.Label{}, nil
	}

	var labels []models.Label
	if err := tx.Where("id IN ?", ids).Find(&labels).Error; err != nil {
		return nil, err
	}
	if len(labels) != len(uniqueStrings(ids)) {
		return nil, ErrLabelNotFound
	}
	return labels, nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}
