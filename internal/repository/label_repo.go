package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/script-playground-api/internal/models"
)

// ErrLabelNotFound indicates at least one referenced label does not exist.
var ErrLabelNotFound = errors.New("label not found")

// LabelRepository exposes persistence helpers for labels.
type LabelRepository interface {
	List(ctx context.Context) ([]models.Label, error)
	Create(ctx context.Context, label *models.Label) error
	GetByName(ctx context.Context, name string) (models.Label, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Label, error)
}

// NewLabelRepository constructs a label repository.
func NewLabelRepository(db *gorm.DB) LabelRepository {
	return &labelRepository{db: db}
}

type labelRepository struct {
	db *gorm.DB
}

func (r *labelRepository) List(ctx context.Context) ([]models.Label, error) {
	var labels []models.Label
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&labels).Error; err != nil {
		return nil, err
	}
	return labels, nil
}

func (r *labelRepository) Create(ctx context.Context, label *models.Label) error {
	return r.db.WithContext(ctx).Create(label).Error
}

func (r *labelRepository) GetByName(ctx context.Context, name string) (models.Label, error) {
	var label models.Label
	if err := r.db.WithContext(ctx).First(&label, "LOWER(name) = LOWER(?)", name).Error; err != nil {
		return models.Label{}, err
	}
	return label, nil
}

func (r *labelRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Label, error) {
	return findLabels(r.db.WithContext(ctx), ids)
}
