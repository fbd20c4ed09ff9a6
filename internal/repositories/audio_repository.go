package repositories

import (
	"context"
	"errors"

	"github.com/audiostack/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AudioFilter narrows and pages a user's audio file listing.
type AudioFilter struct {
	Page     int
	Limit    int
	Category string
	Search   string
}

type AudioRepository interface {
	Create(ctx context.Context, file *models.AudioFile) error
	// FindForUser returns the file only when it belongs to userID.
	FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.AudioFile, error)
	Save(ctx context.Context, file *models.AudioFile) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID, filter AudioFilter) ([]models.AudioFile, int64, error)
	CountForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type gormAudioRepository struct {
	db *gorm.DB
}

func NewAudioRepository(db *gorm.DB) AudioRepository {
	return &gormAudioRepository{db: db}
}

func (r *gormAudioRepository) Create(ctx context.Context, file *models.AudioFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *gormAudioRepository) FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.AudioFile, error) {
	var file models.AudioFile
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *gormAudioRepository) Save(ctx context.Context, file *models.AudioFile) error {
	return r.db.WithContext(ctx).Save(file).Error
}

func (r *gormAudioRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.AudioFile{}, "id = ?", id).Error
}

func (r *gormAudioRepository) ListForUser(ctx context.Context, userID uuid.UUID, filter AudioFilter) ([]models.AudioFile, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AudioFile{}).Where("user_id = ?", userID)
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("original_name ILIKE ? OR description ILIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var files []models.AudioFile
	err := query.
		Order("created_at DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&files).Error
	return files, total, err
}

func (r *gormAudioRepository) CountForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AudioFile{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}
