package port

import (
	"context"
	"time"

	"github.com/rimsurge/identity-service/internal/core/domain"
)

// VerificationCodeStore holds hashed verification codes with a bounded number
// of wrong-guess attempts.
type VerificationCodeStore interface {
	// Store writes the code digest for the identity and purpose, replacing
	// any previous code and resetting its attempt budget.
	Store(ctx context.Context, purpose domain.VerificationPurpose, identity, digest string, ttl time.Duration) error
	// Verify atomically compares the digest against the stored one. A match
	// consumes the code and clears the failure counter. A mismatch counts a
	// failure within failWindow; reaching maxFailures invalidates the code.
	Verify(ctx context.Context, purpose domain.VerificationPurpose, identity, digest string, maxFailures int, failWindow time.Duration) (domain.VerifyOutcome, error)
	// Delete removes the code record, if any.
	Delete(ctx context.Context, purpose domain.VerificationPurpose, identity string) error
}

// CooldownStore enforces the paired resend lock over the identity and the
// requesting address.
type CooldownStore interface {
	// AcquirePair atomically checks both locks and, only when neither is
	// held, sets both for ttl. It reports whether the pair was acquired.
	// The pair is never partially set.
	AcquirePair(ctx context.Context, purpose domain.VerificationPurpose, identity, addr string, ttl time.Duration) (bool, error)
}

// AbuseSample reports rolling-window send pressure for one identity/address
// pairing, observed from both sides.
type AbuseSample struct {
	// IdentityCount is the number of sends targeting the identity in the
	// window; IdentityPeers the distinct addresses behind them.
	IdentityCount int64
	IdentityPeers int64
	// AddressCount is the number of sends from the address in the window;
	// AddressPeers the distinct identities it targeted.
	AddressCount int64
	AddressPeers int64
}

// AbuseTracker counts send activity and escalates to a temporary ban when one
// side of the pairing is hammered by several distinct counterparts.
type AbuseTracker interface {
	// Track records a send for the identity/address pair within the rolling
	// window and returns the updated pressure sample.
	Track(ctx context.Context, purpose domain.VerificationPurpose, identity, addr string, window time.Duration) (AbuseSample, error)
	Ban(ctx context.Context, purpose domain.VerificationPurpose, scope domain.AbuseScope, value string, ttl time.Duration) error
	IsBanned(ctx context.Context, purpose domain.VerificationPurpose, scope domain.AbuseScope, value string) (bool, error)
}

// ExistsCache is a short-lived cache in front of account existence lookups so
// that resend storms do not translate into database load.
type ExistsCache interface {
	// Get returns (exists, found, err); found is false on a cache miss.
	Get(ctx context.Context, identity string) (bool, bool, error)
	Set(ctx context.Context, identity string, exists bool, ttl time.Duration) error
}
