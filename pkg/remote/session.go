package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cuemby/verdant/pkg/types"
)

// StaticSession always reports the same user. A nil User means signed out.
type StaticSession struct {
	User *types.User
}

// CurrentUser returns the configured user
func (s StaticSession) CurrentUser(ctx context.Context) (*types.User, error) {
	return s.User, nil
}

// RedisSessions resolves a session token to a user stored in Redis under
// session:<token>
type RedisSessions struct {
	client *redis.Client
	prefix string
	token  string
}

// NewRedisSessions connects to redisURL and resolves token
func NewRedisSessions(redisURL, token string) (*RedisSessions, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisSessionsWithClient(client, token), nil
}

// NewRedisSessionsWithClient creates a session source from an existing client
func NewRedisSessionsWithClient(client *redis.Client, token string) *RedisSessions {
	return &RedisSessions{
		client: client,
		prefix: "session:",
		token:  token,
	}
}

func (s *RedisSessions) key(token string) string {
	return s.prefix + token
}

// CurrentUser returns the user of the configured token, or nil when the token
// is empty, unknown or expired
func (s *RedisSessions) CurrentUser(ctx context.Context) (*types.User, error) {
	if s.token == "" {
		return nil, nil
	}

	data, err := s.client.Get(ctx, s.key(s.token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var user types.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if user.ID == "" {
		return nil, nil
	}
	return &user, nil
}

// SaveSession stores user under token for ttl
func (s *RedisSessions) SaveSession(ctx context.Context, token string, user *types.User, ttl time.Duration) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// DeleteSession removes token
func (s *RedisSessions) DeleteSession(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

// Close closes the Redis client
func (s *RedisSessions) Close() error {
	return s.client.Close()
}
