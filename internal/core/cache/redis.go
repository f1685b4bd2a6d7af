package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/careops/lattice/internal/config"
	"github.com/careops/lattice/internal/core/model"
)

const redisEntriesKey = "lattice:cache:entries"

// RedisStore keeps cache entries in a Redis list, one JSON document per
// entry, so cached answers survive process restarts and can be shared by
// replicas. The cosine scan still happens in-process over a snapshot.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client, key: redisEntriesKey}, nil
}

// NewRedisStoreWithClient wraps an existing client; tests use this with
// miniredis.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, key: redisEntriesKey}
}

func (s *RedisStore) Append(ctx context.Context, entry model.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	return s.client.RPush(ctx, s.key, data).Err()
}

func (s *RedisStore) Snapshot(ctx context.Context) ([]model.CacheEntry, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading cache entries: %w", err)
	}

	entries := make([]model.CacheEntry, 0, len(raw))
	for _, item := range raw {
		var e model.CacheEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("unmarshaling cache entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) Replace(ctx context.Context, entries []model.CacheEntry) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling cache entry: %w", err)
		}
		pipe.RPush(ctx, s.key, data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
