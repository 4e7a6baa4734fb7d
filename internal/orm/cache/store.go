// Package cache keeps hydrated entities in Redis, keyed by model and id, and
// drops them when the CRUD engine writes a new revision.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key is not cached
var ErrCacheMiss = errors.New("cache miss")

// Config holds the Redis connection and key settings
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key
	Prefix string
	// TTL applies when Set is called with a zero ttl
	TTL time.Duration
}

// DefaultConfig returns a local Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:   "localhost:6379",
		Prefix: "revstore:",
		TTL:    5 * time.Minute,
	}
}

// Store is a prefixed byte store on Redis
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Connect opens a client and checks the server answers
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return NewStore(client, cfg), nil
}

// NewStore wraps an existing client
func NewStore(client *redis.Client, cfg Config) *Store {
	return &Store{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}
}

// Get returns the value of key, or ErrCacheMiss
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return value, nil
}

// Set stores value under key. A zero ttl uses the configured default.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = s.ttl
	}
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

// Delete removes keys
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	return s.client.Del(ctx, full...).Err()
}

// Clear removes every key under the prefix
func (s *Store) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}
