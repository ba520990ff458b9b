package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mercator-labs/listing-sync/internal/ports"
)

// RedisCache implements the ports.Cache capability on go-redis. Batches
// are committed through TxPipelined so every multi-command unit the
// engine builds applies atomically.
type RedisCache struct {
	client *redis.Client
	// db is the client's selected database; COPY requires an explicit
	// destination DB and must target the same one the client reads from.
	db int
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, db: client.Options().DB}
}

func (c *RedisCache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}

func (c *RedisCache) HMGet(ctx context.Context, key string, fields ...string) (map[string]string, error) {
	if len(fields) == 0 {
		return map[string]string{}, nil
	}
	values, err := c.client.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(fields))
	for i, v := range values {
		if s, ok := v.(string); ok {
			out[fields[i]] = s
		}
	}
	return out, nil
}

func (c *RedisCache) HLen(ctx context.Context, key string) (int64, error) {
	return c.client.HLen(ctx, key).Result()
}

func (c *RedisCache) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return c.client.SAdd(ctx, key, toAny(members)...).Err()
}

func (c *RedisCache) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.client.SMembers(ctx, key).Result()
}

func (c *RedisCache) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return c.client.SRem(ctx, key, toAny(members)...).Err()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Keys walks the keyspace with SCAN MATCH rather than KEYS; snapshot sets
// stay small but the keyspace as a whole does not.
func (c *RedisCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	for {
		batch, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

// Swap runs COPY REPLACE + PERSIST + DEL in one TxPipeline and inspects
// the COPY result afterwards, so a source key that expired before the
// pipeline ran is reported instead of silently leaving dst stale.
func (c *RedisCache) Swap(ctx context.Context, src, dst string) (bool, error) {
	var copied *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		copied = p.Copy(ctx, src, dst, c.db, true)
		p.Persist(ctx, dst)
		p.Del(ctx, src)
		return nil
	})
	if err != nil {
		return false, err
	}
	return copied.Val() > 0, nil
}

func (c *RedisCache) Tx(ctx context.Context, fn func(b ports.Batch)) error {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		fn(&redisBatch{ctx: ctx, pipe: p})
		return nil
	})
	return err
}

type redisBatch struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (b *redisBatch) HSet(key string, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	flat := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		flat = append(flat, k, v)
	}
	b.pipe.HSet(b.ctx, key, flat...)
}

func (b *redisBatch) HDel(key string, fields ...string) {
	if len(fields) == 0 {
		return
	}
	b.pipe.HDel(b.ctx, key, fields...)
}

func (b *redisBatch) HIncrBy(key, field string, delta int64) {
	b.pipe.HIncrBy(b.ctx, key, field, delta)
}

func (b *redisBatch) HSetField(key, field, value string) {
	b.pipe.HSet(b.ctx, key, field, value)
}

func (b *redisBatch) SRem(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	b.pipe.SRem(b.ctx, key, toAny(members)...)
}

func (b *redisBatch) Del(keys ...string) {
	if len(keys) == 0 {
		return
	}
	b.pipe.Del(b.ctx, keys...)
}

func (b *redisBatch) Expire(key string, ttl time.Duration) {
	b.pipe.Expire(b.ctx, key, ttl)
}

func (b *redisBatch) Persist(key string) {
	b.pipe.Persist(b.ctx, key)
}

func toAny(members []string) []any {
	out := make([]any, len(members))
	for i, m := range members {
		out[i] = m
	}
	return out
}
