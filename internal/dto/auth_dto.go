package dto

import (
	"time"

	"github.com/audiostack/backend/internal/models"
	"github.com/google/uuid"
)

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

type AuthResponse struct {
	Message     string       `json:"message"`
	AccessToken string       `json:"accessToken"`
	User        UserResponse `json:"user"`
}

type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type LogoutAllResponse struct {
	ClearedTokens int `json:"clearedTokens"`
}

type UsageResponse struct {
	LoginCount   int64 `json:"loginCount"`
	RefreshCount int64 `json:"refreshCount"`
	LogoutCount  int64 `json:"logoutCount"`
}
