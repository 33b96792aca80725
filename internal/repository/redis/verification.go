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
	codeKeyPrefix = "verify:code"
	failKeyPrefix = "verify:fail"

	fieldDigest   = "digest"
	fieldAttempts = "attempts"
)

// consumeCodeLua performs the whole verify decision atomically: a concurrent
// pair of requests can never both consume the same code, and a wrong guess is
// always counted before the next guess is examined.
//
// KEYS[1] = code record, KEYS[2] = failure counter
// ARGV[1] = candidate digest, ARGV[2] = max failures, ARGV[3] = window ms
//
// Returns: -1 absent, 0 consumed, -2 exhausted, N>0 remaining attempts.
var consumeCodeLua = red.NewScript(`
local stored = redis.call('HGET', KEYS[1], 'digest')
if not stored then
  return -1
end
if stored == ARGV[1] then
  redis.call('DEL', KEYS[1])
  redis.call('DEL', KEYS[2])
  return 0
end
local failures = redis.call('INCR', KEYS[2])
if failures == 1 then
  redis.call('PEXPIRE', KEYS[2], ARGV[3])
end
redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if failures >= tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
  return -2
end
return tonumber(ARGV[2]) - failures
`)

// CodeRepository stores verification code digests in Redis.
type CodeRepository struct {
	client *red.Client
}

// NewCodeRepository constructs a Redis-backed verification code store.
func NewCodeRepository(client *red.Client) *CodeRepository {
	return &CodeRepository{client: client}
}

func codeKey(purpose domain.VerificationPurpose, identity string) string {
	return fmt.Sprintf("%s:%s:%s", codeKeyPrefix, purpose, identity)
}

func failKey(purpose domain.VerificationPurpose, identity string) string {
	return fmt.Sprintf("%s:%s:%s", failKeyPrefix, purpose, identity)
}

// Store writes the digest under the purpose-scoped key, superseding any
// previous code and resetting its attempt counter.
func (r *CodeRepository) Store(ctx context.Context, purpose domain.VerificationPurpose, identity, digest string, ttl time.Duration) error {
	switch {
	case !purpose.Valid():
		return errors.New("invalid purpose")
	case identity == "":
		return errors.New("identity is required")
	case digest == "":
		return errors.New("digest is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	key := codeKey(purpose, identity)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldDigest:   digest,
		fieldAttempts: "0",
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store verification code: %w", err)
	}

	return nil
}

// Verify runs the atomic consume script against the stored digest.
func (r *CodeRepository) Verify(ctx context.Context, purpose domain.VerificationPurpose, identity, digest string, maxFailures int, failWindow time.Duration) (domain.VerifyOutcome, error) {
	if !purpose.Valid() || identity == "" {
		return domain.VerifyOutcome{}, errors.New("purpose and identity are required")
	}
	if maxFailures <= 0 {
		return domain.VerifyOutcome{}, errors.New("max failures must be positive")
	}

	keys := []string{codeKey(purpose, identity), failKey(purpose, identity)}
	result, err := consumeCodeLua.Run(ctx, r.client, keys,
		digest, maxFailures, failWindow.Milliseconds()).Int64()
	if err != nil {
		return domain.VerifyOutcome{}, fmt.Errorf("redis consume verification code: %w", err)
	}

	switch {
	case result == -1:
		return domain.VerifyOutcome{Status: domain.VerifyAbsent}, nil
	case result == 0:
		return domain.VerifyOutcome{Status: domain.VerifyOK}, nil
	case result == -2:
		return domain.VerifyOutcome{Status: domain.VerifyExhausted}, nil
	default:
		return domain.VerifyOutcome{
			Status:            domain.VerifyMismatch,
			RemainingAttempts: int(result),
		}, nil
	}
}

// Delete removes the code record. Deleting an absent record is not an error.
func (r *CodeRepository) Delete(ctx context.Context, purpose domain.VerificationPurpose, identity string) error {
	if !purpose.Valid() || identity == "" {
		return errors.New("purpose and identity are required")
	}

	if err := r.client.Del(ctx, codeKey(purpose, identity)).Err(); err != nil {
		return fmt.Errorf("redis delete verification code: %w", err)
	}

	return nil
}

var _ port.VerificationCodeStore = (*CodeRepository)(nil)
