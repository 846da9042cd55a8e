package kv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"solrelay/pkg/platform/sentinel"
)

// incrWithTTL creates the counter with a millisecond TTL on first increment so
// a window counter never outlives its window.
var incrWithTTL = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisBackend is the durable Backend shared by every relay instance.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// SetIfAbsent uses SET NX PX, which is atomic across all instances.
func (b *RedisBackend) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return b.client.SetNX(ctx, key, "1", ttl).Result()
}

func (b *RedisBackend) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return incrWithTTL.Run(ctx, b.client, []string{key}, ttl.Milliseconds()).Int64()
}

func (b *RedisBackend) Get(ctx context.Context, key string) (string, error) {
	v, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	return v, err
}

func (b *RedisBackend) PushHead(ctx context.Context, list, value string) error {
	return b.client.LPush(ctx, list, value).Err()
}

func (b *RedisBackend) Trim(ctx context.Context, list string, size int) error {
	if size <= 0 {
		return b.client.Del(ctx, list).Err()
	}
	return b.client.LTrim(ctx, list, 0, int64(size)-1).Err()
}

func (b *RedisBackend) Range(ctx context.Context, list string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	return b.client.LRange(ctx, list, 0, int64(n)-1).Result()
}

func (b *RedisBackend) Status(ctx context.Context) string {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return StatusDegraded
	}
	return StatusReady
}
