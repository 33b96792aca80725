package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/rimsurge/identity-service/internal/core/domain"
	"github.com/rimsurge/identity-service/internal/core/port"
	"github.com/rimsurge/identity-service/internal/infra/security"
	"github.com/rimsurge/identity-service/internal/repository"
)

const refreshKeyPrefix = "refresh_token"

type refreshSessionRecord struct {
	UserID     int64  `json:"user_id"`
	DeviceID   string `json:"device_id"`
	DeviceType string `json:"device_type"`
	ExpireTime int64  `json:"expire_time"`
}

// RefreshTokenRepository persists refresh sessions in Redis.
type RefreshTokenRepository struct {
	client *red.Client
	now    func() time.Time
}

// NewRefreshTokenRepository constructs a Redis-backed refresh session store.
func NewRefreshTokenRepository(client *red.Client) *RefreshTokenRepository {
	return &RefreshTokenRepository{
		client: client,
		now:    time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (r *RefreshTokenRepository) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// Sessions are keyed by the token digest so the bearer token itself never
// lands in Redis.
func refreshKey(token string) string {
	return fmt.Sprintf("%s:%s", refreshKeyPrefix, security.HashToken(token))
}

// Save persists the session for its remaining lifetime, then reads it back.
// A write that cannot be confirmed returns port.ErrSessionNotPersisted; the
// caller must not issue tokens against it.
func (r *RefreshTokenRepository) Save(ctx context.Context, session domain.RefreshSession) error {
	if session.Token == "" {
		return errors.New("token is required")
	}

	ttl := session.Remaining(r.now().UTC())
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	record := refreshSessionRecord{
		UserID:     session.UserID,
		DeviceID:   session.DeviceID,
		DeviceType: session.DeviceType,
		ExpireTime: session.ExpiresAt.UTC().Unix(),
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal refresh session: %w", err)
	}

	key := refreshKey(session.Token)
	if err := r.client.SetEx(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set refresh session: %w", err)
	}

	// Confirm the write before anyone depends on it.
	stored, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return port.ErrSessionNotPersisted
		}
		return fmt.Errorf("redis confirm refresh session: %w", err)
	}
	if stored != string(payload) {
		return port.ErrSessionNotPersisted
	}

	return nil
}

// Resolve returns the session for the token. An unknown token and a record
// whose stored expiry has passed both map to repository.ErrNotFound; the
// stored expire_time is re-checked even though Redis expiry should have
// removed the key already.
func (r *RefreshTokenRepository) Resolve(ctx context.Context, token string) (*domain.RefreshSession, error) {
	if token == "" {
		return nil, repository.ErrNotFound
	}

	raw, err := r.client.Get(ctx, refreshKey(token)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get refresh session: %w", err)
	}

	var record refreshSessionRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("unmarshal refresh session: %w", err)
	}

	expiresAt := time.Unix(record.ExpireTime, 0).UTC()
	if !expiresAt.After(r.now().UTC()) {
		return nil, repository.ErrNotFound
	}

	return &domain.RefreshSession{
		Token:      token,
		UserID:     record.UserID,
		DeviceID:   record.DeviceID,
		DeviceType: record.DeviceType,
		ExpiresAt:  expiresAt,
	}, nil
}

// Revoke deletes the session. Revoking an absent token is not an error.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	if err := r.client.Del(ctx, refreshKey(token)).Err(); err != nil {
		return fmt.Errorf("redis delete refresh session: %w", err)
	}

	return nil
}

// TTL reports how long the token remains valid.
func (r *RefreshTokenRepository) TTL(ctx context.Context, token string) (time.Duration, error) {
	if token == "" {
		return 0, repository.ErrNotFound
	}

	ttl, err := r.client.TTL(ctx, refreshKey(token)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl refresh session: %w", err)
	}
	if ttl < 0 {
		return 0, repository.ErrNotFound
	}

	return ttl, nil
}

var _ port.RefreshTokenStore = (*RefreshTokenRepository)(nil)
