package domain

import "time"

// Device types accepted in session claims.
const (
	DeviceTypeWeb     = "web"
	DeviceTypeMiniapp = "miniapp"
	DeviceTypeApp     = "app"
)

// SessionClaims carries the identity bound into a signed access token. Claims
// are immutable after issuance and verified by signature and expiry only; the
// service keeps no server-side state for access tokens.
type SessionClaims struct {
	UserID     int64
	DeviceID   string
	DeviceType string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// RefreshSession is the cache-persisted record behind an opaque refresh token.
// Exactly one record exists per live token; it is created at login or
// registration, read on refresh, and deleted on logout.
type RefreshSession struct {
	Token      string
	UserID     int64
	DeviceID   string
	DeviceType string
	ExpiresAt  time.Time
}

// Remaining returns the lifetime left on the refresh session at the given
// reference time, or zero when already expired.
func (s RefreshSession) Remaining(now time.Time) time.Duration {
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
