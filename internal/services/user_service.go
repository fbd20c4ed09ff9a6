package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/audiostack/backend/internal/models"
	"github.com/audiostack/backend/internal/repositories"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserProfile is a user plus their audio file count, as shown in listings.
type UserProfile struct {
	User           *models.User
	AudioFileCount int64
}

// UserUpdate carries the optional profile fields of a PUT; nil means leave
// unchanged.
type UserUpdate struct {
	Username *string
	Email    *string
	Password *string
}

type UserService struct {
	users repositories.UserRepository
	files repositories.AudioRepository
}

func NewUserService(users repositories.UserRepository, files repositories.AudioRepository) *UserService {
	return &UserService{users: users, files: files}
}

func (s *UserService) List(ctx context.Context) ([]UserProfile, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	profiles := make([]UserProfile, 0, len(users))
	for i := range users {
		count, err := s.files.CountForUser(ctx, users[i].ID)
		if err != nil {
			return nil, fmt.Errorf("count audio files: %w", err)
		}
		profiles = append(profiles, UserProfile{User: &users[i], AudioFileCount: count})
	}
	return profiles, nil
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*UserProfile, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	count, err := s.files.CountForUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count audio files: %w", err)
	}
	return &UserProfile{User: user, AudioFileCount: count}, nil
}

func (s *UserService) Update(ctx context.Context, id uuid.UUID, update UserUpdate) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if update.Username != nil || update.Email != nil {
		username := user.Username
		if update.Username != nil {
			username = *update.Username
		}
		email := user.Email
		if update.Email != nil {
			email = *update.Email
		}
		conflict, err := s.users.FindConflict(ctx, username, email, id)
		if err != nil {
			return nil, fmt.Errorf("check user conflict: %w", err)
		}
		switch conflict {
		case "username":
			return nil, ErrUsernameTaken
		case "email":
			return nil, ErrEmailTaken
		}
		user.Username = username
		user.Email = email
	}

	if update.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*update.Password), bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.Password = string(hash)
	}

	if err := s.users.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.users.Delete(ctx, id)
}
