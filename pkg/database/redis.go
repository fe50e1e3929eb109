package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/obsplan/obsplan/pkg/config"
)

// Redis represents a Redis client connection pool. It backs the magic-link
// token store, where key TTLs enforce token expiry.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a new Redis client using the provided configuration.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &Redis{client: client}, nil
}

// Close closes the Redis client connection.
func (r *Redis) Close() {
	if r.client != nil {
		r.client.Close()
	}
}

// Client returns the underlying Redis client.
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Ping checks if the Redis connection is alive.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
