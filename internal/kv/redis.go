package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each section in one Redis hash under a common prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to the given redis:// URL and verifies the
// connection before returning.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: "setlist:"}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "setlist:"}
}

func (s *RedisStore) hashKey(section string) string {
	return s.prefix + section
}

func (s *RedisStore) Get(ctx context.Context, section, key string) (string, bool, error) {
	value, err := s.client.HGet(ctx, s.hashKey(section), key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hget %s/%s: %w", section, key, err)
	}
	return value, true, nil
}

func (s *RedisStore) Put(ctx context.Context, section, key, value string) error {
	if err := s.client.HSet(ctx, s.hashKey(section), key, value).Err(); err != nil {
		return fmt.Errorf("hset %s/%s: %w", section, key, err)
	}
	return nil
}

func (s *RedisStore) GetSection(ctx context.Context, section string) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, s.hashKey(section)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", section, err)
	}
	return values, nil
}

func (s *RedisStore) PutSection(ctx context.Context, section string, values map[string]string) error {
	hash := s.hashKey(section)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, hash)
	if len(values) > 0 {
		flat := make([]any, 0, len(values)*2)
		for k, v := range values {
			flat = append(flat, k, v)
		}
		pipe.HSet(ctx, hash, flat...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace section %s: %w", section, err)
	}
	return nil
}

func (s *RedisStore) DeleteSection(ctx context.Context, section string) error {
	if err := s.client.Del(ctx, s.hashKey(section)).Err(); err != nil {
		return fmt.Errorf("del %s: %w", section, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
