package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/audiostack/backend/internal/models"
	"github.com/audiostack/backend/internal/repositories"
	"github.com/google/uuid"
)

var (
	ErrAudioNotFound   = errors.New("audio file not found")
	ErrInvalidCategory = errors.New("invalid category")
)

type AudioService struct {
	files repositories.AudioRepository
}

func NewAudioService(files repositories.AudioRepository) *AudioService {
	return &AudioService{files: files}
}

func (s *AudioService) Create(ctx context.Context, file *models.AudioFile) error {
	if !models.ValidCategory(file.Category) {
		return ErrInvalidCategory
	}
	if err := s.files.Create(ctx, file); err != nil {
		return fmt.Errorf("create audio file record: %w", err)
	}
	slog.Info("audio file uploaded",
		"user_id", file.UserID.String(), "audio_id", file.ID.String(), "size", file.FileSize)
	return nil
}

func (s *AudioService) ListForUser(ctx context.Context, userID uuid.UUID, filter repositories.AudioFilter) ([]models.AudioFile, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 10
	}
	return s.files.ListForUser(ctx, userID, filter)
}

func (s *AudioService) Get(ctx context.Context, id, userID uuid.UUID) (*models.AudioFile, error) {
	file, err := s.files.FindForUser(ctx, id, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrAudioNotFound
	}
	return file, err
}

// Update changes description and/or category. A nil description leaves the
// existing one in place; an empty category does the same.
func (s *AudioService) Update(ctx context.Context, id, userID uuid.UUID, description *string, category string) (*models.AudioFile, error) {
	file, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if description != nil {
		file.Description = *description
	}
	if category != "" {
		if !models.ValidCategory(category) {
			return nil, ErrInvalidCategory
		}
		file.Category = category
	}

	if err := s.files.Save(ctx, file); err != nil {
		return nil, fmt.Errorf("update audio file: %w", err)
	}
	return file, nil
}

// Delete removes the record and the bytes on disk. A missing disk file is
// not an error; the record is the source of truth.
func (s *AudioService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	file, err := s.Get(ctx, id, userID)
	if err != nil {
		return err
	}

	if err := os.Remove(file.FilePath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove audio file from disk",
			"audio_id", file.ID.String(), "path", file.FilePath, "error", err)
	}

	if err := s.files.Delete(ctx, file.ID); err != nil {
		return fmt.Errorf("delete audio file record: %w", err)
	}
	slog.Info("audio file deleted", "user_id", userID.String(), "audio_id", file.ID.String())
	return nil
}

func (s *AudioService) CountForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.files.CountForUser(ctx, userID)
}
