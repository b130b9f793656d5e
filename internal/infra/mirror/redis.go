package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ratio_watch/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client the sink uses.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Compile-time check
var _ RedisClient = (*redis.Client)(nil)

// RedisSink stores the latest snapshot JSON under a key and publishes it on
// a channel for other consumers.
type RedisSink struct {
	client  RedisClient
	key     string
	channel string
}

// NewRedisClient connects to a Redis server.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisSink creates a sink. An empty channel disables publishing.
func NewRedisSink(client RedisClient, key, channel string) *RedisSink {
	return &RedisSink{client: client, key: key, channel: channel}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Push(ctx context.Context, snap domain.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	if s.channel == "" {
		return nil
	}
	if err := s.client.Publish(ctx, s.channel, b).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", s.channel, err)
	}
	return nil
}
