package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rimsurge/identity-service/internal/core/domain"
	"github.com/rimsurge/identity-service/internal/repository"
)

func TestRefreshTokenSaveAndResolve(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewRefreshTokenRepository(client)
	ctx := context.Background()

	now := time.Now().UTC()
	session := domain.RefreshSession{
		Token:      "tok-abc",
		UserID:     42,
		DeviceID:   "device-1",
		DeviceType: domain.DeviceTypeWeb,
		ExpiresAt:  now.Add(24 * time.Hour),
	}

	if err := repo.Save(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}

	resolved, err := repo.Resolve(ctx, "tok-abc")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.UserID != 42 || resolved.DeviceID != "device-1" || resolved.DeviceType != domain.DeviceTypeWeb {
		t.Fatalf("unexpected session: %+v", resolved)
	}
	if resolved.ExpiresAt.Unix() != session.ExpiresAt.Unix() {
		t.Fatalf("expected expiry %v, got %v", session.ExpiresAt, resolved.ExpiresAt)
	}
}

func TestRefreshTokenKeysAreDigests(t *testing.T) {
	mr, client := newTestClient(t)
	repo := NewRefreshTokenRepository(client)
	ctx := context.Background()

	session := domain.RefreshSession{
		Token:     "tok-secret",
		UserID:    7,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	if err := repo.Save(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}

	for _, key := range mr.Keys() {
		if strings.Contains(key, "tok-secret") {
			t.Fatalf("raw token leaked into key %q", key)
		}
	}
}

func TestRefreshTokenResolveUnknown(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewRefreshTokenRepository(client)

	if _, err := repo.Resolve(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefreshTokenDefensiveExpiryCheck(t *testing.T) {
	// Even when the Redis key still exists, a stored expiry in the past must
	// not resolve.
	_, client := newTestClient(t)
	repo := NewRefreshTokenRepository(client)
	ctx := context.Background()

	base := time.Now().UTC()
	session := domain.RefreshSession{
		Token:     "tok-stale",
		UserID:    7,
		ExpiresAt: base.Add(time.Hour),
	}

	if err := repo.Save(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}

	repo.WithClock(func() time.Time { return base.Add(2 * time.Hour) })

	if _, err := repo.Resolve(ctx, "tok-stale"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stale record, got %v", err)
	}
}

func TestRefreshTokenSaveRejectsExpired(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewRefreshTokenRepository(client)

	session := domain.RefreshSession{
		Token:     "tok-dead",
		UserID:    7,
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}

	if err := repo.Save(context.Background(), session); err == nil {
		t.Fatalf("expected save of expired session to fail")
	}
}

func TestRefreshTokenRevokeIdempotent(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewRefreshTokenRepository(client)
	ctx := context.Background()

	session := domain.RefreshSession{
		Token:     "tok-gone",
		UserID:    7,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	if err := repo.Save(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := repo.Revoke(ctx, "tok-gone"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := repo.Revoke(ctx, "tok-gone"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}

	if _, err := repo.Resolve(ctx, "tok-gone"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after revoke, got %v", err)
	}
}

func TestRefreshTokenTTL(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewRefreshTokenRepository(client)
	ctx := context.Background()

	session := domain.RefreshSession{
		Token:     "tok-ttl",
		UserID:    7,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	if err := repo.Save(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}

	ttl, err := repo.TTL(ctx, "tok-ttl")
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	if _, err := repo.TTL(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing token, got %v", err)
	}
}

func TestExistsCache(t *testing.T) {
	mr, client := newTestClient(t)
	repo := NewExistsCacheRepository(client)
	ctx := context.Background()

	_, found, err := repo.Get(ctx, "u@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatalf("expected miss on empty cache")
	}

	if err := repo.Set(ctx, "u@example.com", true, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	exists, found, err := repo.Get(ctx, "u@example.com")
	if err != nil {
		t.Fatalf("get after set: %v", err)
	}
	if !found || !exists {
		t.Fatalf("expected cached exists=true, got exists=%v found=%v", exists, found)
	}

	if err := repo.Set(ctx, "ghost@example.com", false, time.Minute); err != nil {
		t.Fatalf("set negative: %v", err)
	}
	exists, found, err = repo.Get(ctx, "ghost@example.com")
	if err != nil {
		t.Fatalf("get negative: %v", err)
	}
	if !found || exists {
		t.Fatalf("expected cached exists=false, got exists=%v found=%v", exists, found)
	}

	mr.FastForward(time.Minute + time.Second)

	_, found, err = repo.Get(ctx, "u@example.com")
	if err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if found {
		t.Fatalf("expected memo to expire")
	}
}
