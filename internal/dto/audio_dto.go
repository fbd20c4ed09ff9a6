package dto

import (
	"time"

	"github.com/audiostack/backend/internal/models"
	"github.com/google/uuid"
)

type UpdateAudioRequest struct {
	Description *string `json:"description" validate:"omitempty,max=500"`
	Category    string  `json:"category" validate:"omitempty"`
}

type AudioFileResponse struct {
	ID           uuid.UUID `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Description  string    `json:"description,omitempty"`
	Category     string    `json:"category"`
	FileSize     int64     `json:"fileSize"`
	MimeType     string    `json:"mimeType"`
	Duration     *float64  `json:"duration,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func NewAudioFileResponse(f *models.AudioFile) AudioFileResponse {
	return AudioFileResponse{
		ID:           f.ID,
		Filename:     f.Filename,
		OriginalName: f.OriginalName,
		Description:  f.Description,
		Category:     f.Category,
		FileSize:     f.FileSize,
		MimeType:     f.MimeType,
		Duration:     f.Duration,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

type AudioListResponse struct {
	AudioFiles []AudioFileResponse `json:"audioFiles"`
	Pagination Pagination          `json:"pagination"`
}

type CategoriesResponse struct {
	Categories []string `json:"categories"`
}
