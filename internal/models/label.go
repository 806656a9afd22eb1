package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Label is a coloured tag that can be attached to many challenges.
type Label struct {
	ID    string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name  string `gorm:"size:64;uniqueIndex;not null" json:"name"`
	Color string `gorm:"size:16;not null" json:"color"`
}

// BeforeCreate assigns a UUID when the caller did not provide one.
func (l *Label) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
