package coordinator

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"gitlab.com/NebulousLabs/errors"
)

// RedisCoordinator is the production Coordinator backed by a real Redis
// (or Redis-protocol compatible) deployment.
type RedisCoordinator struct {
	client redis.UniversalClient
}

// New wraps an already-constructed redis.UniversalClient. Callers
// building from config.Config typically use NewFromAddress instead.
func New(client redis.UniversalClient) *RedisCoordinator {
	return &RedisCoordinator{client: client}
}

// NewFromAddress dials a single Redis node the way a Host or Worker
// constructed from on-disk config does.
func NewFromAddress(addr string, db int, password string) *RedisCoordinator {
	return New(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

func wrapErr(err error, context string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return errors.AddContext(err, context)
}

func (c *RedisCoordinator) Incr(ctx context.Context, key string) (int64, error) {
	v, err := c.client.Incr(ctx, key).Result()
	return v, wrapErr(err, "coordinator: incr "+key)
}

func (c *RedisCoordinator) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return wrapErr(c.client.HSet(ctx, key, args...).Err(), "coordinator: hset "+key)
}

func (c *RedisCoordinator) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrapErr(err, "coordinator: hgetall "+key)
	}
	return m, nil
}

func (c *RedisCoordinator) LPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	return wrapErr(c.client.LPush(ctx, key, toAny(values)...).Err(), "coordinator: lpush "+key)
}

func (c *RedisCoordinator) RPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	return wrapErr(c.client.RPush(ctx, key, toAny(values)...).Err(), "coordinator: rpush "+key)
}

func (c *RedisCoordinator) RPop(ctx context.Context, key string) (string, error) {
	v, err := c.client.RPop(ctx, key).Result()
	return v, wrapErr(err, "coordinator: rpop "+key)
}

func (c *RedisCoordinator) RPopLPush(ctx context.Context, src, dst string) (string, error) {
	v, err := c.client.RPopLPush(ctx, src, dst).Result()
	return v, wrapErr(err, "coordinator: rpoplpush "+src)
}

func (c *RedisCoordinator) BRPopLPush(ctx context.Context, src, dst string, timeout time.Duration) (string, error) {
	v, err := c.client.BRPopLPush(ctx, src, dst, timeout).Result()
	return v, wrapErr(err, "coordinator: brpoplpush "+src)
}

func (c *RedisCoordinator) LRem(ctx context.Context, key string, count int, value string) (int64, error) {
	n, err := c.client.LRem(ctx, key, int64(count), value).Result()
	return n, wrapErr(err, "coordinator: lrem "+key)
}

func (c *RedisCoordinator) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := c.client.LRange(ctx, key, start, stop).Result()
	return v, wrapErr(err, "coordinator: lrange "+key)
}

func (c *RedisCoordinator) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return wrapErr(c.client.SAdd(ctx, key, toAny(members)...).Err(), "coordinator: sadd "+key)
}

func (c *RedisCoordinator) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	n, err := c.client.SRem(ctx, key, toAny(members)...).Result()
	return n, wrapErr(err, "coordinator: srem "+key)
}

func (c *RedisCoordinator) SCard(ctx context.Context, key string) (int64, error) {
	n, err := c.client.SCard(ctx, key).Result()
	return n, wrapErr(err, "coordinator: scard "+key)
}

func (c *RedisCoordinator) SMembers(ctx context.Context, key string) ([]string, error) {
	m, err := c.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, wrapErr(err, "coordinator: smembers "+key)
	}
	return m, nil
}

func (c *RedisCoordinator) SRandMember(ctx context.Context, key string) (string, error) {
	v, err := c.client.SRandMember(ctx, key).Result()
	return v, wrapErr(err, "coordinator: srandmember "+key)
}

func (c *RedisCoordinator) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, wrapErr(err, "coordinator: exists "+key)
	}
	return n > 0, nil
}

func (c *RedisCoordinator) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return wrapErr(c.client.Del(ctx, keys...).Err(), "coordinator: del")
}

func (c *RedisCoordinator) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	return wrapErr(c.client.Set(ctx, key, value, ttl).Err(), "coordinator: setex "+key)
}

func (c *RedisCoordinator) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, wrapErr(err, "coordinator: expire "+key)
	}
	return ok, nil
}

func toAny(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

var _ Coordinator = (*RedisCoordinator)(nil)
