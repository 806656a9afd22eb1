package dto

import (
	"time"

	"github.com/noah-isme/script-playground-api/internal/models"
)

// LabelResponse represents a label attached to challenges.
type LabelResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// LabelCreateRequest is the payload for creating a label. An empty color picks one from the palette.
type LabelCreateRequest struct {
	Name  string `json:"name" validate:"required,max=64"`
	Color string `json:"color" validate:"omitempty,len=7,hexcolor"`
}

// ChallengeSummary is the list view of a challenge.
type ChallengeSummary struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Slug       string          `json:"slug"`
	Difficulty string          `json:"difficulty"`
	Order      int             `json:"order"`
	Labels     []LabelResponse `json:"labels"`
	Completed  bool            `json:"completed"`
}

// ChallengeDetail is the solving view of a challenge.
type ChallengeDetail struct {
	ChallengeSummary
	Description        string `json:"description"`
	Language           string `json:"language"`
	TranslationMissing bool   `json:"translation_missing"`
	StarterCode        string `json:"starter_code"`
	PrevSlug           string `json:"prev_slug,omitempty"`
	NextSlug           string `json:"next_slug,omitempty"`
}

// AdminChallengeResponse exposes every challenge field, including the solution.
type AdminChallengeResponse struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Slug         string          `json:"slug"`
	Description  string          `json:"description"`
	StarterCode  string          `json:"starter_code"`
	SolutionCode *string         `json:"solution_code"`
	Difficulty   string          `json:"difficulty"`
	Order        int             `json:"order"`
	Labels       []LabelResponse `json:"labels"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ChallengeCreateRequest is the admin payload for a new challenge.
type ChallengeCreateRequest struct {
	Title        string   `json:"title" validate:"required,max=255"`
	Slug         string   `json:"slug" validate:"omitempty,max=255"`
	Description  string   `json:"description" validate:"required"`
	StarterCode  string   `json:"starter_code" validate:"max=65536"`
	SolutionCode *string  `json:"solution_code" validate:"omitempty,max=65536"`
	Difficulty   string   `json:"difficulty" validate:"required,oneof=EASY MEDIUM HARD"`
	LabelIDs     []string `json:"label_ids" validate:"omitempty,dive,required"`
}

// ChallengeUpdateRequest is a partial update; nil fields are left untouched.
// A non-nil LabelIDs replaces the label set.
type ChallengeUpdateRequest struct {
	Title        *string   `json:"title" validate:"omitempty,min=1,max=255"`
	Slug         *string   `json:"slug" validate:"omitempty,min=1,max=255"`
	Description  *string   `json:"description" validate:"omitempty,min=1"`
	StarterCode  *string   `json:"starter_code" validate:"omitempty,max=65536"`
	SolutionCode *string   `json:"solution_code" validate:"omitempty,max=65536"`
	Difficulty   *string   `json:"difficulty" validate:"omitempty,oneof=EASY MEDIUM HARD"`
	LabelIDs     *[]string `json:"label_ids" validate:"omitempty,dive,required"`
}

// OrderItem assigns a position to one challenge.
type OrderItem struct {
	ID    string `json:"id" validate:"required"`
	Order int    `json:"order" validate:"gte=0"`
}

// ReorderRequest carries either explicit positions or the ids in their new sequence.
type ReorderRequest struct {
	Items []OrderItem `json:"items" validate:"omitempty,dive"`
	IDs   []string    `json:"ids" validate:"omitempty,dive,required"`
}

// MoveRequest relocates the challenge at From to To.
type MoveRequest struct {
	From *int `json:"from" validate:"required,gte=0"`
	To   *int `json:"to" validate:"required,gte=0"`
}

// NewLabelResponse builds a label DTO.
func NewLabelResponse(label models.Label) LabelResponse {
	return LabelResponse{ID: label.ID, Name: label.Name, Color: label.Color}
}

// NewLabelResponses builds label DTOs preserving order.
func NewLabelResponses(labels []models.Label) []LabelResponse {
	items := make([]LabelResponse, 0, len(labels))
	for _, label := range labels {
		items = append(items, NewLabelResponse(label))
	}
	return items
}

// NewChallengeSummary builds the list view of a challenge.
func NewChallengeSummary(challenge models.Challenge) ChallengeSummary {
	return ChallengeSummary{
		ID:         challenge.ID,
		Title:      challenge.Title,
		Slug:       challenge.Slug,
		Difficulty: challenge.Difficulty,
		Order:      challenge.Order,
		Labels:     NewLabelResponses(challenge.Labels),
	}
}

// NewAdminChallengeResponse builds the admin view of a challenge.
func NewAdminChallengeResponse(challenge models.Challenge) AdminChallengeResponse {
	return AdminChallengeResponse{
		ID:           challenge.ID,
		Title:        challenge.Title,
		Slug:         challenge.Slug,
		Description:  challenge.Description,
		StarterCode:  challenge.StarterCode,
		SolutionCode: challenge.SolutionCode,
		Difficulty:   challenge.Difficulty,
		Order:        challenge.Order,
		Labels:       NewLabelResponses(challenge.Labels),
		CreatedAt:    challenge.CreatedAt,
		UpdatedAt:    challenge.UpdatedAt,
	}
}

// NewAdminChallengeResponses builds admin DTOs preserving order.
func NewAdminChallengeResponses(challenges []models.Challenge) []AdminChallengeResponse {
	items := make([]AdminChallengeResponse, 0, len(challenges))
	for _, challenge := range challenges {
		items = append(items, NewAdminChallengeResponse(challenge))
	}
	return items
}
