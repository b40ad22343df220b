package core

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshTokenStore tracks the live refresh token per user. A user has at
// most one valid refresh token at a time; logout removes it.
type RefreshTokenStore interface {
	Save(ctx context.Context, userID int64, token string, ttl time.Duration) error
	Verify(ctx context.Context, userID int64, token string) (bool, error)
	Delete(ctx context.Context, userID int64) error
}

const refreshTokenKeyPrefix = "refresh_token:"

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// RedisRefreshTokenStore implements RefreshTokenStore using go-redis.
type RedisRefreshTokenStore struct {
	client *redis.Client
}

func NewRedisRefreshTokenStore(client *redis.Client) *RedisRefreshTokenStore {
	return &RedisRefreshTokenStore{client: client}
}

func refreshTokenKey(userID int64) string {
	return refreshTokenKeyPrefix + strconv.FormatInt(userID, 10)
}

func (s *RedisRefreshTokenStore) Save(ctx context.Context, userID int64, token string, ttl time.Duration) error {
	return s.client.Set(ctx, refreshTokenKey(userID), token, ttl).Err()
}

// Verify reports whether token matches the stored refresh token for userID.
// A missing key is not an error; it just means the token is no longer live.
func (s *RedisRefreshTokenStore) Verify(ctx context.Context, userID int64, token string) (bool, error) {
	stored, err := s.client.Get(ctx, refreshTokenKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return stored == token, nil
}

func (s *RedisRefreshTokenStore) Delete(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, refreshTokenKey(userID)).Err()
}
