package redis

import (
	"context"
	"testing"
	"time"

	"github.com/rimsurge/identity-service/internal/core/domain"
)

func TestCooldownAcquirePair(t *testing.T) {
	mr, client := newTestClient(t)
	repo := NewCooldownRepository(client)
	ctx := context.Background()

	acquired, err := repo.AcquirePair(ctx, domain.PurposeRegister, "u@example.com", "203.0.113.7", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !acquired {
		t.Fatalf("expected first acquisition to succeed")
	}

	// Same identity from another address is blocked by the identity lock.
	acquired, err = repo.AcquirePair(ctx, domain.PurposeRegister, "u@example.com", "198.51.100.1", time.Minute)
	if err != nil {
		t.Fatalf("acquire same identity: %v", err)
	}
	if acquired {
		t.Fatalf("expected identity lock to block")
	}

	// Another identity from the original address is blocked by the address lock.
	acquired, err = repo.AcquirePair(ctx, domain.PurposeRegister, "other@example.com", "203.0.113.7", time.Minute)
	if err != nil {
		t.Fatalf("acquire same addr: %v", err)
	}
	if acquired {
		t.Fatalf("expected address lock to block")
	}

	// A refused acquisition must not leave a new lock behind: the second
	// identity stays free for a fresh address.
	acquired, err = repo.AcquirePair(ctx, domain.PurposeRegister, "other@example.com", "198.51.100.2", time.Minute)
	if err != nil {
		t.Fatalf("acquire fresh pair: %v", err)
	}
	if !acquired {
		t.Fatalf("expected refusal to leave no partial lock")
	}

	mr.FastForward(time.Minute + time.Second)

	acquired, err = repo.AcquirePair(ctx, domain.PurposeRegister, "u@example.com", "203.0.113.7", time.Minute)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	if !acquired {
		t.Fatalf("expected locks to expire")
	}
}

func TestCooldownPurposesAreIsolated(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewCooldownRepository(client)
	ctx := context.Background()

	if _, err := repo.AcquirePair(ctx, domain.PurposeRegister, "u@example.com", "203.0.113.7", time.Minute); err != nil {
		t.Fatalf("acquire register: %v", err)
	}

	acquired, err := repo.AcquirePair(ctx, domain.PurposeReset, "u@example.com", "203.0.113.7", time.Minute)
	if err != nil {
		t.Fatalf("acquire reset: %v", err)
	}
	if !acquired {
		t.Fatalf("expected reset namespace to be independent of register")
	}
}
