package ports

import (
	"context"
	"time"
)

// Batch collects cache commands that must commit as one atomic unit.
// Implementations queue the commands and apply them all-or-nothing when
// the enclosing Tx call returns.
type Batch interface {
	HSet(key string, fields map[string]string)
	HDel(key string, fields ...string)
	HIncrBy(key, field string, delta int64)
	HSetField(key, field, value string)
	SRem(key string, members ...string)
	Del(keys ...string)
	Expire(key string, ttl time.Duration)
	Persist(key string)
}

// Cache is the key-value capability consumed by the engine: per-account
// hash maps, string sets, TTLs, and atomic multi-command batches.
type Cache interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HMGet(ctx context.Context, key string, fields ...string) (map[string]string, error)
	HLen(ctx context.Context, key string) (int64, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...string) error
	Del(ctx context.Context, keys ...string) error
	// Keys enumerates keys matching a glob pattern, used to find all open
	// temp snapshots for an account.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Swap atomically replaces dst with the full contents of src, makes dst
	// permanent, and drops src. It reports whether src existed at swap
	// time; when it did not, dst's contents are untouched.
	Swap(ctx context.Context, src, dst string) (bool, error)
	Tx(ctx context.Context, fn func(b Batch)) error
}
