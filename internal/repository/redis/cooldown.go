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
	cooldownKeyPrefix     = "verify:cooldown"
	cooldownAddrKeyPrefix = "verify:cooldown:addr"
)

// acquirePairLua checks both cooldown locks and sets both only when neither
// is held. The pair is set in one script invocation so a crash or concurrent
// request can never observe one lock without the other.
//
// KEYS[1] = identity lock, KEYS[2] = address lock, ARGV[1] = ttl ms
// Returns 1 when acquired, 0 when either lock was already held.
var acquirePairLua = red.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 or redis.call('EXISTS', KEYS[2]) == 1 then
  return 0
end
redis.call('SET', KEYS[1], '1', 'PX', ARGV[1])
redis.call('SET', KEYS[2], '1', 'PX', ARGV[1])
return 1
`)

// CooldownRepository enforces resend cooldowns in Redis.
type CooldownRepository struct {
	client *red.Client
}

// NewCooldownRepository constructs a Redis-backed cooldown store.
func NewCooldownRepository(client *red.Client) *CooldownRepository {
	return &CooldownRepository{client: client}
}

// AcquirePair attempts to take both the identity and address cooldown locks.
func (r *CooldownRepository) AcquirePair(ctx context.Context, purpose domain.VerificationPurpose, identity, addr string, ttl time.Duration) (bool, error) {
	switch {
	case !purpose.Valid():
		return false, errors.New("invalid purpose")
	case identity == "" || addr == "":
		return false, errors.New("identity and addr are required")
	case ttl <= 0:
		return false, errors.New("ttl must be positive")
	}

	keys := []string{
		fmt.Sprintf("%s:%s:%s", cooldownKeyPrefix, purpose, identity),
		fmt.Sprintf("%s:%s:%s", cooldownAddrKeyPrefix, purpose, addr),
	}

	result, err := acquirePairLua.Run(ctx, r.client, keys, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis acquire cooldown pair: %w", err)
	}

	return result == 1, nil
}

var _ port.CooldownStore = (*CooldownRepository)(nil)
