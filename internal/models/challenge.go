package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Difficulty enumerates the difficulty levels a challenge can have.
const (
	DifficultyEasy   = "EASY"
	DifficultyMedium = "MEDIUM"
	DifficultyHard   = "HARD"
)

// Challenge represents a coding exercise learners can solve in the playground.
type Challenge struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Slug         string    `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Description  string    `gorm:"type:text;not null" json:"description"`
	StarterCode  string    `gorm:"type:text;not null" json:"starter_code"`
	SolutionCode *string   `gorm:"type:text" json:"solution_code,omitempty"`
	Difficulty   string    `gorm:"size:16;not null;default:EASY" json:"difficulty"`
	Order        int       `gorm:"column:order;not null;default:0;index" json:"order"`
	Labels       []Label   `gorm:"many2many:challenge_labels;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"labels"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not provide one.
func (c *Challenge) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// LocalizedDescription returns the description for the requested language.
// Descriptions are either plain text or a JSON object keyed by language code.
// The second return value is false when the description is a map that has no
// entry for the language.
func (c Challenge) LocalizedDescription(language string) (string, bool) {
	translations, ok := c.DescriptionTranslations()
	if !ok {
		return c.Description, true
	}

	text, found := translations[strings.ToLower(strings.TrimSpace(language))]
	if !found || strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

// DescriptionTranslations decodes the per-language description map, if any.
func (c Challenge) DescriptionTranslations() (map[string]string, bool) {
	trimmed := strings.TrimSpace(c.Description)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	var translations map[string]string
	if err := json.Unmarshal([]byte(trimmed), &translations); err != nil {
		return nil, false
	}
	return translations, true
}

// IsValidDifficulty reports whether the value is one of the known difficulty levels.
func IsValidDifficulty(value string) bool {
	switch value {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}
