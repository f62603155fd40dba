package lease

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "roomkey:escalation:"

// Redis is a Locker shared by every gateway replica.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "failed to acquire escalation lease")
	}
	return ok, nil
}

func (r *Redis) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "failed to release escalation lease")
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
