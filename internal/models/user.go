package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User carries the per-user tokenVersion counter. Every login, logout and
// forced logout increments it, which invalidates all previously issued
// tokens for the user in one step. It never decreases.
type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Username     string         `gorm:"size:50;not null;uniqueIndex" json:"username"`
	Email        string         `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Password     string         `gorm:"not null" json:"-"`
	TokenVersion int            `gorm:"not null;default:1" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	AudioFiles []AudioFile `gorm:"foreignKey:UserID" json:"-"`
}
