package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/audiostack/backend/internal/models"
	"github.com/audiostack/backend/internal/repositories"
	"github.com/audiostack/backend/internal/tokens"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired refresh token")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already taken")
)

const bcryptCost = 12

// AuthResult is what a successful register, login or refresh hands back to
// the HTTP layer. The refresh token only ever travels in the cookie.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         *models.User
}

// AuthService orchestrates login, refresh, logout and logout-all across the
// durable user store, the revocation cache and the token issuer/validator.
// It holds no locks: concurrent operations on the same user are serialized
// only by the atomic tokenVersion increment, and every stale interleaving is
// caught by the version checks at validation time.
type AuthService struct {
	users     repositories.UserRepository
	store     *tokens.Store
	issuer    *tokens.Issuer
	validator *tokens.Validator
}

func NewAuthService(users repositories.UserRepository, store *tokens.Store, issuer *tokens.Issuer, validator *tokens.Validator) *AuthService {
	return &AuthService{users: users, store: store, issuer: issuer, validator: validator}
}

func (s *AuthService) Validator() *tokens.Validator { return s.validator }

// Register creates the user at tokenVersion 1 and issues the first token
// pair. Returns ErrUsernameTaken / ErrEmailTaken on conflict.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	conflict, err := s.users.FindConflict(ctx, username, email, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("check user conflict: %w", err)
	}
	switch conflict {
	case "username":
		return nil, ErrUsernameTaken
	case "email":
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		Password:     string(hash),
		TokenVersion: 1,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	slog.Info("user registered", "user_id", user.ID.String(), "username", username)
	return s.issuePair(ctx, user, "login")
}

// Login verifies credentials, bumps tokenVersion (invalidating every token
// issued before this call), sweeps the user's old cache entries, and issues
// a fresh pair at the new version. A login is therefore also an implicit
// "log out everywhere else".
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	user, err := s.users.FindByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			slog.Info("login failed, unknown identifier", "identifier", identifier)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		slog.Info("login failed, wrong password", "user_id", user.ID.String())
		return nil, ErrInvalidCredentials
	}

	// Version bump happens before the sweep and before issuing, so anyone
	// who can see the new tokens also sees the post-increment version.
	if err := s.users.IncrementTokenVersion(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("increment token version: %w", err)
	}
	user, err = s.users.FindByID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}

	if cleared, err := s.store.ClearUser(ctx, user.ID); err != nil {
		slog.Warn("sweep of old token entries failed during login", "user_id", user.ID.String(), "error", err)
	} else if cleared > 0 {
		slog.Info("cleared stale token entries on login", "user_id", user.ID.String(), "cleared", cleared)
	}

	return s.issuePair(ctx, user, "login")
}

// Refresh rotates a refresh token: the presented token's cache entry is
// consumed and a new pair is issued at the user's current version. A miss on
// a syntactically valid token is treated as reuse.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string) (*AuthResult, error) {
	claims, err := s.validator.ParseRefresh(rawRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}

	entry, err := s.store.GetRefresh(ctx, claims.TokenID)
	if err != nil {
		// Revoked, already rotated, or the cache lost it. Either way the
		// token should not exist in a client's hands anymore.
		s.handleReuse(ctx, claims.UserID)
		return nil, ErrInvalidToken
	}

	if entry.UserID != claims.UserID || entry.TokenVersion != claims.TokenVersion {
		s.handleReuse(ctx, claims.UserID)
		return nil, ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			_ = s.store.DeleteRefresh(ctx, claims.TokenID)
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("load user for refresh: %w", err)
	}

	if user.TokenVersion != claims.TokenVersion {
		_ = s.store.DeleteRefresh(ctx, claims.TokenID)
		return nil, ErrInvalidToken
	}

	// One-time use: consume the old entry before minting replacements.
	if err := s.store.DeleteRefresh(ctx, claims.TokenID); err != nil {
		slog.Warn("failed to consume refresh entry during rotation", "user_id", user.ID.String(), "error", err)
	}

	return s.issuePair(ctx, user, "refresh")
}

// handleReuse reacts to a refresh token that verified cryptographically but
// had no live cache entry. All of the user's cached refresh entries are
// swept, and tokenVersion is bumped so sibling access tokens from the same
// session die immediately instead of riding out their TTL.
func (s *AuthService) handleReuse(ctx context.Context, userID uuid.UUID) {
	slog.Warn("potential refresh token reuse detected", "user_id", userID.String())

	if cleared, err := s.store.ClearUserRefresh(ctx, userID); err != nil {
		slog.Warn("reuse sweep failed", "user_id", userID.String(), "error", err)
	} else {
		slog.Info("cleared refresh entries after reuse signal", "user_id", userID.String(), "cleared", cleared)
	}

	if err := s.users.IncrementTokenVersion(ctx, userID); err != nil {
		slog.Warn("could not bump token version after reuse signal", "user_id", userID.String(), "error", err)
	}
}

// Logout invalidates the session behind the given refresh token. It is
// idempotent and never fails the client: an empty, malformed or already
// revoked token still results in success.
func (s *AuthService) Logout(ctx context.Context, rawRefresh string) {
	if rawRefresh == "" {
		return
	}

	claims, err := s.validator.ParseRefresh(rawRefresh)
	if err != nil {
		return
	}

	if err := s.store.DeleteRefresh(ctx, claims.TokenID); err != nil {
		slog.Warn("failed to delete refresh entry on logout", "user_id", claims.UserID.String(), "error", err)
	}
	if err := s.users.IncrementTokenVersion(ctx, claims.UserID); err != nil {
		slog.Warn("failed to bump token version on logout", "user_id", claims.UserID.String(), "error", err)
	}
	if _, err := s.store.ClearUser(ctx, claims.UserID); err != nil {
		slog.Warn("logout sweep failed", "user_id", claims.UserID.String(), "error", err)
	}
	s.trackUsage(ctx, claims.UserID, "logout")
}

// LogoutAll revokes every outstanding token for the user and reports how
// many live cache entries were cleared.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID) (int, error) {
	if err := s.users.IncrementTokenVersion(ctx, userID); err != nil {
		return 0, fmt.Errorf("increment token version: %w", err)
	}

	cleared, err := s.store.ClearUser(ctx, userID)
	if err != nil {
		slog.Warn("logout-all sweep failed", "user_id", userID.String(), "error", err)
	}
	s.trackUsage(ctx, userID, "logout")

	slog.Info("all sessions revoked", "user_id", userID.String(), "cleared", cleared)
	return cleared, nil
}

func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *AuthService) Usage(ctx context.Context, userID uuid.UUID) (tokens.UsageStats, error) {
	return s.store.Usage(ctx, userID)
}

func (s *AuthService) issuePair(ctx context.Context, user *models.User, event string) (*AuthResult, error) {
	accessToken, _, err := s.issuer.IssueAccess(ctx, user.ID, user.Username, user.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, _, err := s.issuer.IssueRefresh(ctx, user.ID, user.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	s.trackUsage(ctx, user.ID, event)
	return &AuthResult{AccessToken: accessToken, RefreshToken: refreshToken, User: user}, nil
}

func (s *AuthService) trackUsage(ctx context.Context, userID uuid.UUID, action string) {
	if err := s.store.TrackUsage(ctx, userID, action); err != nil {
		slog.Debug("usage tracking failed", "user_id", userID.String(), "action", action, "error", err)
	}
}
