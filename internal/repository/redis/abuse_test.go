package redis

import (
	"context"
	"testing"
	"time"

	"github.com/rimsurge/identity-service/internal/core/domain"
)

func TestAbuseTrackCountsBothSides(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewAbuseRepository(client)
	ctx := context.Background()

	window := 10 * time.Minute

	sample, err := repo.Track(ctx, domain.PurposeRegister, "u@example.com", "203.0.113.7", window)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if sample.IdentityCount != 1 || sample.IdentityPeers != 1 {
		t.Fatalf("unexpected identity sample: %+v", sample)
	}
	if sample.AddressCount != 1 || sample.AddressPeers != 1 {
		t.Fatalf("unexpected address sample: %+v", sample)
	}

	// Same identity from a second address: identity count rises, peers too.
	sample, err = repo.Track(ctx, domain.PurposeRegister, "u@example.com", "198.51.100.1", window)
	if err != nil {
		t.Fatalf("track second addr: %v", err)
	}
	if sample.IdentityCount != 2 || sample.IdentityPeers != 2 {
		t.Fatalf("unexpected identity sample after second addr: %+v", sample)
	}

	// Repeat sends from one address against one identity keep peers at 1.
	for i := 0; i < 3; i++ {
		sample, err = repo.Track(ctx, domain.PurposeRegister, "solo@example.com", "192.0.2.9", window)
		if err != nil {
			t.Fatalf("track solo: %v", err)
		}
	}
	if sample.IdentityCount != 3 || sample.IdentityPeers != 1 {
		t.Fatalf("expected single-peer identity sample, got %+v", sample)
	}
}

func TestAbuseWindowExpires(t *testing.T) {
	mr, client := newTestClient(t)
	repo := NewAbuseRepository(client)
	ctx := context.Background()

	window := 10 * time.Minute

	if _, err := repo.Track(ctx, domain.PurposeRegister, "u@example.com", "203.0.113.7", window); err != nil {
		t.Fatalf("track: %v", err)
	}

	mr.FastForward(window + time.Second)

	sample, err := repo.Track(ctx, domain.PurposeRegister, "u@example.com", "203.0.113.7", window)
	if err != nil {
		t.Fatalf("track after window: %v", err)
	}
	if sample.IdentityCount != 1 || sample.IdentityPeers != 1 {
		t.Fatalf("expected counters to reset after window, got %+v", sample)
	}
}

func TestAbuseBanLifecycle(t *testing.T) {
	mr, client := newTestClient(t)
	repo := NewAbuseRepository(client)
	ctx := context.Background()

	banned, err := repo.IsBanned(ctx, domain.PurposeRegister, domain.AbuseScopeIdentity, "u@example.com")
	if err != nil {
		t.Fatalf("is banned: %v", err)
	}
	if banned {
		t.Fatalf("expected no ban initially")
	}

	if err := repo.Ban(ctx, domain.PurposeRegister, domain.AbuseScopeIdentity, "u@example.com", 30*time.Minute); err != nil {
		t.Fatalf("ban: %v", err)
	}

	banned, err = repo.IsBanned(ctx, domain.PurposeRegister, domain.AbuseScopeIdentity, "u@example.com")
	if err != nil {
		t.Fatalf("is banned after ban: %v", err)
	}
	if !banned {
		t.Fatalf("expected ban to be active")
	}

	// Ban is purpose and scope scoped.
	banned, err = repo.IsBanned(ctx, domain.PurposeReset, domain.AbuseScopeIdentity, "u@example.com")
	if err != nil {
		t.Fatalf("is banned other purpose: %v", err)
	}
	if banned {
		t.Fatalf("expected reset purpose to be unaffected")
	}

	mr.FastForward(30*time.Minute + time.Second)

	banned, err = repo.IsBanned(ctx, domain.PurposeRegister, domain.AbuseScopeIdentity, "u@example.com")
	if err != nil {
		t.Fatalf("is banned after expiry: %v", err)
	}
	if banned {
		t.Fatalf("expected ban to lapse")
	}
}
