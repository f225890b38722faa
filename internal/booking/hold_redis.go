package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisHolder shares holds between service instances.
type RedisHolder struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisHolder(client redis.UniversalClient, prefix string) *RedisHolder {
	if prefix == "" {
		prefix = "slot-hold:"
	}
	return &RedisHolder{client: client, prefix: prefix}
}

func (h *RedisHolder) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := h.client.SetNX(ctx, h.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis hold %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (h *RedisHolder) Release(ctx context.Context, key, token string) error {
	err := releaseScript.Run(ctx, h.client, []string{h.prefix + key}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	return nil
}
