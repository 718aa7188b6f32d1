package subscribers

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKey = "seatwatch:subscribers"

// RedisStore keeps subscriber ids in a redis set, for deployments where the
// bot and the watcher run on different hosts.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Ids returns all subscriber ids.
func (s *RedisStore) Ids() ([]string, error) {
	ids, err := s.client.SMembers(context.Background(), redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	return ids, nil
}

// Add inserts the id. Set semantics make this idempotent.
func (s *RedisStore) Add(id string) error {
	if err := s.client.SAdd(context.Background(), redisKey, id).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

// Remove drops the id if present.
func (s *RedisStore) Remove(id string) error {
	if err := s.client.SRem(context.Background(), redisKey, id).Err(); err != nil {
		return fmt.Errorf("redis srem: %w", err)
	}
	return nil
}

// Close releases the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
