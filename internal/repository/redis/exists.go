package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/rimsurge/identity-service/internal/core/port"
)

const existsKeyPrefix = "exists"

// ExistsCacheRepository memoizes account existence lookups for a short TTL.
type ExistsCacheRepository struct {
	client *red.Client
}

// NewExistsCacheRepository constructs a Redis-backed existence cache.
func NewExistsCacheRepository(client *red.Client) *ExistsCacheRepository {
	return &ExistsCacheRepository{client: client}
}

func existsKey(identity string) string {
	return fmt.Sprintf("%s:%s", existsKeyPrefix, identity)
}

// Get returns the memoized existence flag; found is false on a cache miss.
func (r *ExistsCacheRepository) Get(ctx context.Context, identity string) (bool, bool, error) {
	if identity == "" {
		return false, false, errors.New("identity is required")
	}

	val, err := r.client.Get(ctx, existsKey(identity)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("redis get exists memo: %w", err)
	}

	return val == "1", true, nil
}

// Set memoizes the existence flag for ttl.
func (r *ExistsCacheRepository) Set(ctx context.Context, identity string, exists bool, ttl time.Duration) error {
	if identity == "" {
		return errors.New("identity is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	val := "0"
	if exists {
		val = "1"
	}

	if err := r.client.Set(ctx, existsKey(identity), val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set exists memo: %w", err)
	}

	return nil
}

var _ port.ExistsCache = (*ExistsCacheRepository)(nil)
