package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Categories is the fixed set accepted on upload and edit.
var Categories = []string{
	"Music",
	"Podcast",
	"Audiobook",
	"Sound Effect",
	"Voice Recording",
	"Interview",
	"Lecture",
	"Other",
}

func ValidCategory(c string) bool {
	for _, cat := range Categories {
		if cat == c {
			return true
		}
	}
	return false
}

type AudioFile struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Filename     string         `gorm:"size:255;not null" json:"filename"`
	OriginalName string         `gorm:"size:255;not null" json:"original_name"`
	Description  string         `gorm:"size:500" json:"description"`
	Category     string         `gorm:"size:50;not null" json:"category"`
	FilePath     string         `gorm:"size:512;not null" json:"-"`
	FileSize     int64          `gorm:"not null" json:"file_size"`
	MimeType     string         `gorm:"size:100;not null" json:"mime_type"`
	Duration     *float64       `json:"duration,omitempty"`
	Extra        datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
