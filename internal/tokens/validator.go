package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/audiostack/backend/internal/models"
	"github.com/audiostack/backend/internal/repositories"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidOrExpired covers signature failure, expiry, and a missing
	// revocation-cache entry (revoked, rotated, cache-expired, or the cache
	// is unreachable and we fail closed).
	ErrInvalidOrExpired = errors.New("invalid or expired token")
	// ErrInvalidatedByNewLogin means the token's embedded tokenVersion no
	// longer matches the user's current version.
	ErrInvalidatedByNewLogin = errors.New("token invalidated by new login")
	// ErrUserNotFound means the token references a user that no longer exists.
	ErrUserNotFound = errors.New("user not found")
)

// UserFinder is the slice of the user repository the validator needs.
type UserFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Validator decides whether a presented token still authenticates a user.
// A token passes only if all four independent checks hold: signature and
// expiry, cache presence, cache entry vs claims, and claims vs the user's
// current tokenVersion in the database. Each check closes a different
// staleness window.
type Validator struct {
	store         *Store
	users         UserFinder
	accessSecret  []byte
	refreshSecret []byte
}

func NewValidator(store *Store, users UserFinder, accessSecret, refreshSecret string) *Validator {
	return &Validator{
		store:         store,
		users:         users,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
	}
}

// ParseAccess verifies signature and expiry of an access token and returns
// its claims. It performs no cache or database checks.
func (v *Validator) ParseAccess(raw string) (*Claims, error) {
	var ac accessClaims
	if err := v.parse(raw, &ac, v.accessSecret); err != nil {
		return nil, ErrInvalidOrExpired
	}
	claims, err := fromAccessClaims(&ac)
	if err != nil {
		return nil, ErrInvalidOrExpired
	}
	return claims, nil
}

// ParseRefresh verifies signature and expiry of a refresh token.
func (v *Validator) ParseRefresh(raw string) (*Claims, error) {
	var rc refreshClaims
	if err := v.parse(raw, &rc, v.refreshSecret); err != nil {
		return nil, ErrInvalidOrExpired
	}
	claims, err := fromRefreshClaims(&rc)
	if err != nil {
		return nil, ErrInvalidOrExpired
	}
	return claims, nil
}

func (v *Validator) parse(raw string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("token not valid")
	}
	return nil
}

// Authorize runs the cache and database checks for already-parsed access
// claims and returns the authenticated principal. Stale cache entries
// discovered along the way are deleted.
func (v *Validator) Authorize(ctx context.Context, claims *Claims) (*Principal, error) {
	entry, err := v.store.GetAccess(ctx, claims.TokenID)
	if err != nil {
		if !errors.Is(err, ErrEntryNotFound) {
			// Cache outage: reject rather than accept a possibly revoked
			// token. The client retries once the cache is back.
			slog.Warn("revocation cache unavailable during validation, failing closed",
				"user_id", claims.UserID.String(), "error", err)
		}
		return nil, ErrInvalidOrExpired
	}

	if entry.UserID != claims.UserID || entry.TokenVersion != claims.TokenVersion {
		slog.Info("access token cache entry mismatch, possible concurrent login",
			"user_id", claims.UserID.String())
		_ = v.store.DeleteAccess(ctx, claims.TokenID)
		return nil, ErrInvalidatedByNewLogin
	}

	user, err := v.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			_ = v.store.DeleteAccess(ctx, claims.TokenID)
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user for token validation: %w", err)
	}

	if user.TokenVersion != claims.TokenVersion {
		slog.Info("access token version behind current user version",
			"user_id", claims.UserID.String(),
			"token_version", claims.TokenVersion,
			"current_version", user.TokenVersion)
		_ = v.store.DeleteAccess(ctx, claims.TokenID)
		return nil, ErrInvalidatedByNewLogin
	}

	return &Principal{ID: user.ID, Username: user.Username, Email: user.Email}, nil
}

// ValidateAccessToken is the one-shot form of ParseAccess + Authorize, used
// where the token arrives outside the Authorization header (the audio
// streaming query parameter).
func (v *Validator) ValidateAccessToken(ctx context.Context, raw string) (*Principal, error) {
	claims, err := v.ParseAccess(raw)
	if err != nil {
		return nil, err
	}
	return v.Authorize(ctx, claims)
}
