package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/rimsurge/identity-service/internal/core/domain"
	"github.com/rimsurge/identity-service/internal/core/port"
)

const (
	abuseKeyPrefix = "verify:abuse"
	peersKeyPrefix = "verify:peers"
	banKeyPrefix   = "verify:ban"
)

// trackSideLua records one send against a scope: bump the rolling counter
// (window TTL set on first hit), register the counterpart in the peer set,
// and return both the count and the number of distinct counterparts.
//
// KEYS[1] = counter, KEYS[2] = peer set
// ARGV[1] = counterpart value, ARGV[2] = window ms
var trackSideLua = red.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
redis.call('SADD', KEYS[2], ARGV[1])
if redis.call('PTTL', KEYS[2]) < 0 then
  redis.call('PEXPIRE', KEYS[2], ARGV[2])
end
return {count, redis.call('SCARD', KEYS[2])}
`)

// AbuseRepository tracks verification send pressure and bans in Redis.
type AbuseRepository struct {
	client *red.Client
}

// NewAbuseRepository constructs a Redis-backed abuse tracker.
func NewAbuseRepository(client *red.Client) *AbuseRepository {
	return &AbuseRepository{client: client}
}

func abuseKey(purpose domain.VerificationPurpose, scope domain.AbuseScope, value string) string {
	return fmt.Sprintf("%s:%s:%s:%s", abuseKeyPrefix, purpose, scope, value)
}

func peersKey(purpose domain.VerificationPurpose, scope domain.AbuseScope, value string) string {
	return fmt.Sprintf("%s:%s:%s:%s", peersKeyPrefix, purpose, scope, value)
}

func banKey(purpose domain.VerificationPurpose, scope domain.AbuseScope, value string) string {
	return fmt.Sprintf("%s:%s:%s:%s", banKeyPrefix, purpose, scope, value)
}

// Track records the send on both sides of the identity/address pairing.
func (r *AbuseRepository) Track(ctx context.Context, purpose domain.VerificationPurpose, identity, addr string, window time.Duration) (port.AbuseSample, error) {
	switch {
	case !purpose.Valid():
		return port.AbuseSample{}, errors.New("invalid purpose")
	case identity == "" || addr == "":
		return port.AbuseSample{}, errors.New("identity and addr are required")
	case window <= 0:
		return port.AbuseSample{}, errors.New("window must be positive")
	}

	var sample port.AbuseSample

	identityKeys := []string{
		abuseKey(purpose, domain.AbuseScopeIdentity, identity),
		peersKey(purpose, domain.AbuseScopeIdentity, identity),
	}
	counts, err := trackSideLua.Run(ctx, r.client, identityKeys, addr, window.Milliseconds()).Int64Slice()
	if err != nil {
		return port.AbuseSample{}, fmt.Errorf("redis track identity abuse: %w", err)
	}
	if len(counts) != 2 {
		return port.AbuseSample{}, fmt.Errorf("redis track identity abuse: unexpected reply length %d", len(counts))
	}
	sample.IdentityCount, sample.IdentityPeers = counts[0], counts[1]

	addrKeys := []string{
		abuseKey(purpose, domain.AbuseScopeAddress, addr),
		peersKey(purpose, domain.AbuseScopeAddress, addr),
	}
	counts, err = trackSideLua.Run(ctx, r.client, addrKeys, identity, window.Milliseconds()).Int64Slice()
	if err != nil {
		return port.AbuseSample{}, fmt.Errorf("redis track address abuse: %w", err)
	}
	if len(counts) != 2 {
		return port.AbuseSample{}, fmt.Errorf("redis track address abuse: unexpected reply length %d", len(counts))
	}
	sample.AddressCount, sample.AddressPeers = counts[0], counts[1]

	return sample, nil
}

// Ban places the scope value under a temporary ban.
func (r *AbuseRepository) Ban(ctx context.Context, purpose domain.VerificationPurpose, scope domain.AbuseScope, value string, ttl time.Duration) error {
	if !purpose.Valid() || value == "" {
		return errors.New("purpose and value are required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	if err := r.client.Set(ctx, banKey(purpose, scope, value), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set ban: %w", err)
	}

	return nil
}

// IsBanned reports whether the scope value is currently banned.
func (r *AbuseRepository) IsBanned(ctx context.Context, purpose domain.VerificationPurpose, scope domain.AbuseScope, value string) (bool, error) {
	if !purpose.Valid() || value == "" {
		return false, errors.New("purpose and value are required")
	}

	n, err := r.client.Exists(ctx, banKey(purpose, scope, value)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check ban: %w", err)
	}

	return n > 0, nil
}

var _ port.AbuseTracker = (*AbuseRepository)(nil)
