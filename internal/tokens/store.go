package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/audiostack/backend/internal/cache"
	"github.com/google/uuid"
)

const (
	accessPrefix  = "access:"
	refreshPrefix = "refresh:"
	metricsPrefix = "metrics:"

	metricsTTL = 24 * time.Hour
)

// ErrEntryNotFound is returned when a token id has no live cache entry,
// either because it was revoked, rotated, or expired by TTL.
var ErrEntryNotFound = errors.New("tokens: no cache entry for token id")

// Entry is the revocation-cache value stored under a token id. A token is
// only honored while a matching entry exists.
type Entry struct {
	UserID       uuid.UUID `json:"userId"`
	TokenVersion int       `json:"tokenVersion"`
}

// UsageStats are best-effort per-user counters over the trailing 24 hours.
type UsageStats struct {
	LoginCount   int64 `json:"loginCount"`
	RefreshCount int64 `json:"refreshCount"`
	LogoutCount  int64 `json:"logoutCount"`
}

// Store is the revocation-cache client. It tracks currently-valid token ids
// in two key families (access:, refresh:) with TTLs matching the token
// lifetimes, and keeps the usage counters.
type Store struct {
	kv cache.KV
}

func NewStore(kv cache.KV) *Store {
	return &Store{kv: kv}
}

func (s *Store) PutAccess(ctx context.Context, tokenID string, e Entry, ttl time.Duration) error {
	return s.put(ctx, accessPrefix+tokenID, e, ttl)
}

func (s *Store) PutRefresh(ctx context.Context, tokenID string, e Entry, ttl time.Duration) error {
	return s.put(ctx, refreshPrefix+tokenID, e, ttl)
}

func (s *Store) put(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return s.kv.Set(ctx, key, string(data), ttl)
}

// GetAccess returns ErrEntryNotFound on a miss and the underlying error on a
// cache failure. Callers on the validation path must treat both as "entry
// absent" so a degraded cache fails closed.
func (s *Store) GetAccess(ctx context.Context, tokenID string) (*Entry, error) {
	return s.get(ctx, accessPrefix+tokenID)
}

func (s *Store) GetRefresh(ctx context.Context, tokenID string) (*Entry, error) {
	return s.get(ctx, refreshPrefix+tokenID)
}

func (s *Store) get(ctx context.Context, key string) (*Entry, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return &e, nil
}

func (s *Store) DeleteAccess(ctx context.Context, tokenID string) error {
	return s.kv.Delete(ctx, accessPrefix+tokenID)
}

func (s *Store) DeleteRefresh(ctx context.Context, tokenID string) error {
	return s.kv.Delete(ctx, refreshPrefix+tokenID)
}

// ClearUserAccess deletes every access entry belonging to userID and returns
// how many were removed. The sweep is a prefix scan with a per-entry owner
// check; it is best-effort and not atomic with whatever triggered it, so an
// entry written concurrently may survive until the next sweep or its TTL.
func (s *Store) ClearUserAccess(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.clearUser(ctx, accessPrefix, userID)
}

func (s *Store) ClearUserRefresh(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.clearUser(ctx, refreshPrefix, userID)
}

// ClearUser sweeps both token families for userID.
func (s *Store) ClearUser(ctx context.Context, userID uuid.UUID) (int, error) {
	accessCleared, err := s.ClearUserAccess(ctx, userID)
	if err != nil {
		return accessCleared, err
	}
	refreshCleared, err := s.ClearUserRefresh(ctx, userID)
	return accessCleared + refreshCleared, err
}

func (s *Store) clearUser(ctx context.Context, prefix string, userID uuid.UUID) (int, error) {
	keys, err := s.kv.Keys(ctx, prefix)
	if err != nil {
		return 0, err
	}

	cleared := 0
	for _, key := range keys {
		raw, err := s.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			slog.Warn("skipping corrupt cache entry during sweep", "key", key, "error", err)
			continue
		}
		if e.UserID != userID {
			continue
		}
		if err := s.kv.Delete(ctx, key); err != nil {
			slog.Warn("failed to delete cache entry during sweep", "key", key, "error", err)
			continue
		}
		cleared++
	}
	return cleared, nil
}

// TrackUsage bumps the per-user counter for a login/refresh/logout event.
// Counters expire after 24 hours; failures are the caller's to log, never to
// propagate.
func (s *Store) TrackUsage(ctx context.Context, userID uuid.UUID, action string) error {
	key := metricsPrefix + userID.String() + ":" + action
	if _, err := s.kv.Incr(ctx, key); err != nil {
		return err
	}
	return s.kv.Expire(ctx, key, metricsTTL)
}

func (s *Store) Usage(ctx context.Context, userID uuid.UUID) (UsageStats, error) {
	stats := UsageStats{}
	var err error
	if stats.LoginCount, err = s.counter(ctx, userID, "login"); err != nil {
		return stats, err
	}
	if stats.RefreshCount, err = s.counter(ctx, userID, "refresh"); err != nil {
		return stats, err
	}
	stats.LogoutCount, err = s.counter(ctx, userID, "logout")
	return stats, err
}

func (s *Store) counter(ctx context.Context, userID uuid.UUID, action string) (int64, error) {
	raw, err := s.kv.Get(ctx, metricsPrefix+userID.String()+":"+action)
	if errors.Is(err, cache.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}
