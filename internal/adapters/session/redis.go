package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/sudea/internal/domain/model"
)

type redisIdentity struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// RedisStore keeps sessions as JSON values whose expiry is enforced by Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig, ttl time.Duration) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: redis address required", ErrInvalidConfig)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis ping failed: %w", ErrInvalidConfig, err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedis
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttlOrDefault(ttl)}, nil
}

func (s *RedisStore) key(token string) string { return s.prefix + token }

// Issue implements Store.
func (s *RedisStore) Issue(ctx context.Context, id model.Identity) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIssue, err)
	}
	data, err := json.Marshal(redisIdentity(id))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIssue, err)
	}
	if err := s.client.Set(ctx, s.key(token), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: redis set: %w", ErrIssue, err)
	}
	return token, nil
}

// Lookup implements Store.
func (s *RedisStore) Lookup(ctx context.Context, token string) (model.Identity, bool, error) {
	if token == "" {
		return model.Identity{}, false, nil
	}
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Identity{}, false, nil
	}
	if err != nil {
		return model.Identity{}, false, fmt.Errorf("redis get: %w", err)
	}
	var v redisIdentity
	if err := json.Unmarshal(data, &v); err != nil || v.ID == "" {
		return model.Identity{}, false, nil
	}
	return model.Identity(v), true, nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
