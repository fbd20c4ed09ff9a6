package tokens

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/audiostack/backend/internal/cache"
	"github.com/audiostack/backend/internal/models"
	"github.com/audiostack/backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "test-access-secret"
	testRefreshSecret = "test-refresh-secret"
)

type fakeUserFinder struct {
	users map[uuid.UUID]*models.User
}

func (f *fakeUserFinder) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

// brokenKV simulates an unreachable cache backend.
type brokenKV struct{}

var errBackendDown = errors.New("connection refused")

func (brokenKV) Set(context.Context, string, string, time.Duration) error { return errBackendDown }
func (brokenKV) Get(context.Context, string) (string, error)              { return "", errBackendDown }
func (brokenKV) Delete(context.Context, string) error                     { return errBackendDown }
func (brokenKV) Keys(context.Context, string) ([]string, error)           { return nil, errBackendDown }
func (brokenKV) Incr(context.Context, string) (int64, error)              { return 0, errBackendDown }
func (brokenKV) Expire(context.Context, string, time.Duration) error      { return errBackendDown }

func newTestAuthStack(t *testing.T) (*Store, *Issuer, *Validator, *fakeUserFinder, *models.User) {
	t.Helper()
	store := NewStore(cache.NewMemoryKV())
	issuer := NewIssuer(store, testAccessSecret, testRefreshSecret, 5*time.Minute, 7*24*time.Hour)

	user := &models.User{
		ID:           uuid.New(),
		Username:     "alice",
		Email:        "alice@example.com",
		TokenVersion: 1,
	}
	finder := &fakeUserFinder{users: map[uuid.UUID]*models.User{user.ID: user}}
	validator := NewValidator(store, finder, testAccessSecret, testRefreshSecret)
	return store, issuer, validator, finder, user
}

func TestValidateAccessTokenHappyPath(t *testing.T) {
	_, issuer, validator, _, user := newTestAuthStack(t)
	ctx := context.Background()

	signed, _, err := issuer.IssueAccess(ctx, user.ID, user.Username, user.TokenVersion)
	require.NoError(t, err)

	principal, err := validator.ValidateAccessToken(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.ID)
	assert.Equal(t, "alice", principal.Username)
	assert.Equal(t, "alice@example.com", principal.Email)
}

func TestParseAccessRejectsGarbageAndWrongSecret(t *testing.T) {
	_, issuer, validator, _, user := newTestAuthStack(t)
	ctx := context.Background()

	_, err := validator.ParseAccess("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidOrExpired)

	// A refresh token is signed with the other secret and must not pass as
	// an access token.
	refresh, _, err := issuer.IssueRefresh(ctx, user.ID, user.TokenVersion)
	require.NoError(t, err)
	_, err = validator.ParseAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalidOrExpired)
}

func TestAuthorizeRejectsRevokedToken(t *testing.T) {
	store, issuer, validator, _, user := newTestAuthStack(t)
	ctx := context.Background()

	signed, tokenID, err := issuer.IssueAccess(ctx, user.ID, user.Username, user.TokenVersion)
	require.NoError(t, err)
	require.NoError(t, store.DeleteAccess(ctx, tokenID))

	_, err = validator.ValidateAccessToken(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidOrExpired)
}

func TestAuthorizeRejectsStaleVersion(t *testing.T) {
	store, issuer, validator, finder, user := newTestAuthStack(t)
	ctx := context.Background()

	signed, tokenID, err := issuer.IssueAccess(ctx, user.ID, user.Username, user.TokenVersion)
	require.NoError(t, err)

	// New login elsewhere bumps the version.
	finder.users[user.ID].TokenVersion = 2

	_, err = validator.ValidateAccessToken(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidatedByNewLogin)

	// The stale cache entry was cleaned up along the way.
	_, err = store.GetAccess(ctx, tokenID)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestAuthorizeRejectsCacheEntryMismatch(t *testing.T) {
	store, issuer, validator, _, user := newTestAuthStack(t)
	ctx := context.Background()

	signed, tokenID, err := issuer.IssueAccess(ctx, user.ID, user.Username, user.TokenVersion)
	require.NoError(t, err)

	// Overwrite the entry as if it belonged to a different session.
	require.NoError(t, store.PutAccess(ctx, tokenID, Entry{UserID: user.ID, TokenVersion: 99}, time.Minute))

	_, err = validator.ValidateAccessToken(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidatedByNewLogin)
}

func TestAuthorizeRejectsDeletedUser(t *testing.T) {
	_, issuer, validator, finder, user := newTestAuthStack(t)
	ctx := context.Background()

	signed, _, err := issuer.IssueAccess(ctx, user.ID, user.Username, user.TokenVersion)
	require.NoError(t, err)

	delete(finder.users, user.ID)

	_, err = validator.ValidateAccessToken(ctx, signed)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthorizeFailsClosedOnCacheOutage(t *testing.T) {
	// Token issued while the cache was healthy, validated during an outage.
	_, issuer, _, finder, user := newTestAuthStack(t)
	ctx := context.Background()

	signed, _, err := issuer.IssueAccess(ctx, user.ID, user.Username, user.TokenVersion)
	require.NoError(t, err)

	downValidator := NewValidator(NewStore(brokenKV{}), finder, testAccessSecret, testRefreshSecret)
	_, err = downValidator.ValidateAccessToken(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidOrExpired)
}

func TestIssueSucceedsDespiteCacheOutage(t *testing.T) {
	// Issuance fails open: the signed token is still returned when the cache
	// write fails, validation remains gated by the DB-side version check.
	issuer := NewIssuer(NewStore(brokenKV{}), testAccessSecret, testRefreshSecret, 5*time.Minute, time.Hour)
	ctx := context.Background()
	userID := uuid.New()

	signed, tokenID, err := issuer.IssueAccess(ctx, userID, "alice", 1)
	require.NoError(t, err)
	assert.NotEmpty(t, signed)
	assert.NotEmpty(t, tokenID)

	signed, tokenID, err = issuer.IssueRefresh(ctx, userID, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, signed)
	assert.NotEmpty(t, tokenID)
}

func TestParseRefreshRoundTrip(t *testing.T) {
	_, issuer, validator, _, user := newTestAuthStack(t)
	ctx := context.Background()

	signed, tokenID, err := issuer.IssueRefresh(ctx, user.ID, user.TokenVersion)
	require.NoError(t, err)

	claims, err := validator.ParseRefresh(signed)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, tokenID, claims.TokenID)
	assert.Equal(t, user.TokenVersion, claims.TokenVersion)
}

func TestClaimsFromMap(t *testing.T) {
	userID := uuid.New()
	claims, err := ClaimsFromMap(map[string]interface{}{
		"sub":           userID.String(),
		"jti":           "token-id",
		"username":      "alice",
		"token_version": float64(4),
		"iat":           float64(1700000000),
	})
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "token-id", claims.TokenID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, 4, claims.TokenVersion)

	_, err = ClaimsFromMap(map[string]interface{}{"jti": "x", "token_version": float64(1)})
	assert.Error(t, err)

	_, err = ClaimsFromMap(map[string]interface{}{"sub": userID.String(), "token_version": float64(1)})
	assert.Error(t, err)
}
