package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"spoon/internal/model"
)

// RedisStore keeps runs as JSON values that expire after ttl.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(restaurantID int64) string {
	return fmt.Sprintf("%s:cleanup:last:%d", s.prefix, restaurantID)
}

func (s *RedisStore) SaveRun(ctx context.Context, run *model.CleanupRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode cleanup run: %w", err)
	}
	if err := s.client.Set(ctx, s.key(run.RestaurantID), data, s.ttl).Err(); err != nil {
		return model.Persistence("save cleanup run", err)
	}
	return nil
}

func (s *RedisStore) LastRun(ctx context.Context, restaurantID int64) (*model.CleanupRun, error) {
	val, err := s.client.Get(ctx, s.key(restaurantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, model.Persistence("load cleanup run", err)
	}

	var run model.CleanupRun
	if err := json.Unmarshal(val, &run); err != nil {
		return nil, model.Persistence("decode cleanup run", err)
	}
	return &run, nil
}
