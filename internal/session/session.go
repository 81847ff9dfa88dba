package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "refresh:"

// Store keeps refresh-token sessions in Redis. Each entry maps a token id
// to the owning user and expires with the token itself, so a restart or a
// rotation leaves no stale sessions behind.
type Store struct {
	Client *redis.Client
	Prefix string
}

// New connects to Redis by URL and verifies the connection.
func New(ctx context.Context, redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{Client: client, Prefix: defaultPrefix}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client) *Store {
	return &Store{Client: client, Prefix: defaultPrefix}
}

func (s *Store) key(tokenID string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return prefix + tokenID
}

// Save registers a refresh session for its lifetime.
func (s *Store) Save(ctx context.Context, tokenID, userID string, ttl time.Duration) error {
	if err := s.Client.Set(ctx, s.key(tokenID), userID, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Lookup returns the user owning a session, or "" when the session is
// unknown or expired.
func (s *Store) Lookup(ctx context.Context, tokenID string) (string, error) {
	userID, err := s.Client.Get(ctx, s.key(tokenID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	return userID, nil
}

// Revoke drops a session. Revoking an unknown session is a no-op.
func (s *Store) Revoke(ctx context.Context, tokenID string) error {
	if err := s.Client.Del(ctx, s.key(tokenID)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.Client.Close()
}
