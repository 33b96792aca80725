package port

import (
	"context"
	"errors"
	"time"

	"github.com/rimsurge/identity-service/internal/core/domain"
)

// ErrSessionNotPersisted reports that a refresh session write could not be
// confirmed by reading it back. Callers must treat this as a hard failure of
// the login rather than issuing tokens against state that may not exist.
var ErrSessionNotPersisted = errors.New("refresh session write not confirmed")

// RefreshTokenStore manages opaque refresh sessions keyed by token.
type RefreshTokenStore interface {
	// Save persists the session for its remaining lifetime and confirms the
	// write by reading it back before returning.
	Save(ctx context.Context, session domain.RefreshSession) error
	// Resolve returns the session bound to the token, or
	// repository.ErrNotFound when the token is unknown or expired.
	Resolve(ctx context.Context, token string) (*domain.RefreshSession, error)
	Revoke(ctx context.Context, token string) error
	// TTL reports how long the token remains valid.
	TTL(ctx context.Context, token string) (time.Duration, error)
}
