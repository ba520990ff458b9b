package cache

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/mercator-labs/listing-sync/internal/domain"
	"github.com/mercator-labs/listing-sync/internal/ports"
)

// RedisLimitStore keeps per-account usage in a Redis hash so deltas can
// chain into the same TxPipeline as the cache write they account for.
type RedisLimitStore struct {
	client *redis.Client
}

func NewRedisLimitStore(client *redis.Client) *RedisLimitStore {
	return &RedisLimitStore{client: client}
}

func limitsKey(account string) string {
	return "listings:limits:" + account
}

func (s *RedisLimitStore) Get(ctx context.Context, account string) (domain.AccountLimits, error) {
	data, err := s.client.HGetAll(ctx, limitsKey(account)).Result()
	if err != nil {
		return domain.AccountLimits{}, err
	}
	limits := domain.AccountLimits{}
	if raw, ok := data["used"]; ok {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n > 0 {
			limits.Used = n
		}
	}
	if raw, ok := data["cap"]; ok {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n > 0 {
			limits.Cap = n
		}
	}
	return limits, nil
}

func (s *RedisLimitStore) SetCap(ctx context.Context, account string, cap int) error {
	return s.client.HSet(ctx, limitsKey(account), "cap", cap).Err()
}

func (s *RedisLimitStore) AddUsedInBatch(b ports.Batch, account string, delta int) {
	b.HIncrBy(limitsKey(account), "used", int64(delta))
}

func (s *RedisLimitStore) SetUsedInBatch(b ports.Batch, account string, used int) {
	b.HSetField(limitsKey(account), "used", strconv.Itoa(used))
}
