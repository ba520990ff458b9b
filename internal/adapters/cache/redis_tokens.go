package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mercator-labs/listing-sync/internal/domain"
)

// RedisTokenStore reads marketplace tokens written by the credential
// service. This side only consumes them; refresh workers need a token to
// fetch listing pages for an account.
type RedisTokenStore struct {
	client *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func (s *RedisTokenStore) Get(ctx context.Context, account string) (string, error) {
	token, err := s.client.Get(ctx, "tokens:"+account).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: no token for account %s", domain.ErrNotFound, account)
	}
	if err != nil {
		return "", err
	}
	return token, nil
}
