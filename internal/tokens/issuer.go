package tokens

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer mints signed access and refresh tokens and registers their token
// ids in the revocation cache. Registration is best-effort: if the cache is
// down the token is still returned, and the database-side tokenVersion check
// remains the backstop for validation.
type Issuer struct {
	store         *Store
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewIssuer(store *Store, accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		store:         store,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccess mints a short-lived access token for the user at the given
// tokenVersion and registers it under access:<jti> with a matching TTL.
func (i *Issuer) IssueAccess(ctx context.Context, userID uuid.UUID, username string, tokenVersion int) (string, string, error) {
	tokenID := uuid.NewString()
	now := time.Now()

	claims := accessClaims{
		Username:     username,
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessSecret)
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}

	entry := Entry{UserID: userID, TokenVersion: tokenVersion}
	if err := i.store.PutAccess(ctx, tokenID, entry, i.accessTTL); err != nil {
		slog.Warn("access token issued without cache entry, immediate revocation degraded",
			"user_id", userID.String(), "error", err)
	}

	return signed, tokenID, nil
}

// IssueRefresh mints a long-lived refresh token. A missing cache entry
// degrades reuse detection for this token only.
func (i *Issuer) IssueRefresh(ctx context.Context, userID uuid.UUID, tokenVersion int) (string, string, error) {
	tokenID := uuid.NewString()
	now := time.Now()

	claims := refreshClaims{
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)
	if err != nil {
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}

	entry := Entry{UserID: userID, TokenVersion: tokenVersion}
	if err := i.store.PutRefresh(ctx, tokenID, entry, i.refreshTTL); err != nil {
		slog.Warn("refresh token issued without cache entry, reuse detection degraded",
			"user_id", userID.String(), "error", err)
	}

	return signed, tokenID, nil
}
