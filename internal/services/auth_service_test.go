package services

import (
	"context"
	"testing"
	"time"

	"github.com/audiostack/backend/internal/cache"
	"github.com/audiostack/backend/internal/models"
	"github.com/audiostack/backend/internal/repositories"
	"github.com/audiostack/backend/internal/tokens"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAccessSecret  = "svc-access-secret"
	testRefreshSecret = "svc-refresh-secret"
)

// fakeUserRepo is an in-memory repositories.UserRepository.
type fakeUserRepo struct {
	users map[uuid.UUID]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*models.User)}
}

func (r *fakeUserRepo) FindByUsernameOrEmail(_ context.Context, identifier string) (*models.User, error) {
	for _, u := range r.users {
		if u.Username == identifier || u.Email == identifier {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) FindConflict(_ context.Context, username, email string, exclude uuid.UUID) (string, error) {
	for _, u := range r.users {
		if u.ID == exclude {
			continue
		}
		if u.Username == username {
			return "username", nil
		}
		if u.Email == email {
			return "email", nil
		}
	}
	return "", nil
}

func (r *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) Save(_ context.Context, user *models.User) error {
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) List(_ context.Context) ([]models.User, error) {
	out := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

func (r *fakeUserRepo) IncrementTokenVersion(_ context.Context, id uuid.UUID) error {
	u, ok := r.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	u.TokenVersion++
	return nil
}

func newTestAuthService(t *testing.T) (*AuthService, *fakeUserRepo, *tokens.Store) {
	t.Helper()
	repo := newFakeUserRepo()
	store := tokens.NewStore(cache.NewMemoryKV())
	issuer := tokens.NewIssuer(store, testAccessSecret, testRefreshSecret, 5*time.Minute, 7*24*time.Hour)
	validator := tokens.NewValidator(store, repo, testAccessSecret, testRefreshSecret)
	return NewAuthService(repo, store, issuer, validator), repo, store
}

func registerAlice(t *testing.T, svc *AuthService) *AuthResult {
	t.Helper()
	result, err := svc.Register(context.Background(), "alice", "alice@example.com", "password123")
	require.NoError(t, err)
	return result
}

func TestRegisterIssuesValidPair(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	result := registerAlice(t, svc)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, 1, result.User.TokenVersion)

	principal, err := svc.Validator().ValidateAccessToken(ctx, result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, principal.ID)
}

func TestRegisterRejectsConflicts(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()
	registerAlice(t, svc)

	_, err := svc.Register(ctx, "alice", "other@example.com", "password123")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = svc.Register(ctx, "other", "alice@example.com", "password123")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginBumpsVersionAndInvalidatesOldTokens(t *testing.T) {
	svc, repo, _ := newTestAuthService(t)
	ctx := context.Background()

	first := registerAlice(t, svc)

	second, err := svc.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, 2, second.User.TokenVersion)

	// Old access token no longer authenticates.
	_, err = svc.Validator().ValidateAccessToken(ctx, first.AccessToken)
	assert.Error(t, err)

	// New one does.
	principal, err := svc.Validator().ValidateAccessToken(ctx, second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, second.User.ID, principal.ID)

	stored := repo.users[second.User.ID]
	assert.Equal(t, 2, stored.TokenVersion)
}

func TestLoginByEmail(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	registerAlice(t, svc)

	result, err := svc.Login(context.Background(), "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "alice", result.User.Username)
}

func TestLoginWrongPasswordLeavesVersionUntouched(t *testing.T) {
	svc, repo, _ := newTestAuthService(t)
	ctx := context.Background()
	result := registerAlice(t, svc)

	_, err := svc.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// A failed attempt must not revoke the victim's sessions.
	assert.Equal(t, 1, repo.users[result.User.ID].TokenVersion)
	_, err = svc.Validator().ValidateAccessToken(ctx, result.AccessToken)
	assert.NoError(t, err)
}

func TestLoginUnknownIdentifier(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	_, err := svc.Login(context.Background(), "nobody", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshRotatesAndIsOneTimeUse(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()
	result := registerAlice(t, svc)

	rotated, err := svc.Refresh(ctx, result.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, result.RefreshToken, rotated.RefreshToken)

	// Replaying the consumed token fails.
	_, err = svc.Refresh(ctx, result.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshReuseRevokesEverything(t *testing.T) {
	svc, repo, _ := newTestAuthService(t)
	ctx := context.Background()
	result := registerAlice(t, svc)
	userID := result.User.ID

	rotated, err := svc.Refresh(ctx, result.RefreshToken)
	require.NoError(t, err)

	// An attacker replays the consumed token: the reuse signal bumps the
	// version, so even the legitimate rotated pair dies.
	_, err = svc.Refresh(ctx, result.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.Equal(t, 2, repo.users[userID].TokenVersion)
	_, err = svc.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.Validator().ValidateAccessToken(ctx, rotated.AccessToken)
	assert.Error(t, err)
}

func TestRefreshGarbageToken(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	_, err := svc.Refresh(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogoutRevokesSessionAndIsIdempotent(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()
	result := registerAlice(t, svc)

	svc.Logout(ctx, result.RefreshToken)

	_, err := svc.Refresh(ctx, result.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.Validator().ValidateAccessToken(ctx, result.AccessToken)
	assert.Error(t, err)

	// Repeat and garbage logouts are no-ops, not failures.
	svc.Logout(ctx, result.RefreshToken)
	svc.Logout(ctx, "garbage")
	svc.Logout(ctx, "")
}

func TestLogoutAllCountsClearedEntries(t *testing.T) {
	svc, repo, _ := newTestAuthService(t)
	ctx := context.Background()
	result := registerAlice(t, svc)
	userID := result.User.ID

	// A second session for the same user.
	_, err := svc.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	cleared, err := svc.LogoutAll(ctx, userID)
	require.NoError(t, err)
	// The login swept the register-time pair, leaving one live pair.
	assert.Equal(t, 2, cleared)
	assert.Equal(t, 3, repo.users[userID].TokenVersion)

	cleared, err = svc.LogoutAll(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, cleared)
}

func TestLogoutAllUnknownUser(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	_, err := svc.LogoutAll(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestUsageTracksAuthEvents(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()
	result := registerAlice(t, svc)
	userID := result.User.ID

	rotated, err := svc.Refresh(ctx, result.RefreshToken)
	require.NoError(t, err)
	svc.Logout(ctx, rotated.RefreshToken)

	stats, err := svc.Usage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.LoginCount)
	assert.Equal(t, int64(1), stats.RefreshCount)
	assert.Equal(t, int64(1), stats.LogoutCount)
}

func TestRegisterStoresBcryptHash(t *testing.T) {
	svc, repo, _ := newTestAuthService(t)
	result := registerAlice(t, svc)

	stored := repo.users[result.User.ID]
	assert.NotEqual(t, "password123", stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("password123")))
}
