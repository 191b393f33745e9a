// Package redis implements the session cache on a shared Redis instance, for
// deployments where several engine replicas should see the same evictions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gatekeep-io/gatekeep/cache"
	"github.com/gatekeep-io/gatekeep/domain"
)

// SessionCache implements cache.SessionCache using Redis.
type SessionCache struct {
	client *redis.Client
	prefix string // optional key prefix
	ttl    time.Duration
}

// NewSessionCache creates a new [SessionCache] instance.
func NewSessionCache(client *redis.Client, prefix string, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, prefix: prefix, ttl: ttl}
}

// redisKey returns the Redis key for a given access token.
func (r *SessionCache) redisKey(accessToken string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, cache.HashToken(accessToken))
}

// Set stores a session under its hashed access token with the cache TTL.
func (r *SessionCache) Set(ctx context.Context, session *domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, r.redisKey(session.AccessToken), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}
	return nil
}

// Get retrieves a cached session by access token.
func (r *SessionCache) Get(ctx context.Context, accessToken string) (*domain.Session, bool) {
	payload, err := r.client.Get(ctx, r.redisKey(accessToken)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Msg("Failed to get session from Redis")
		}
		return nil, false
	}
	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		log.Warn().Err(err).Msg("Failed to unmarshal cached session")
		return nil, false
	}
	return &session, true
}

// Delete evicts a session entry.
func (r *SessionCache) Delete(ctx context.Context, accessToken string) error {
	if err := r.client.Del(ctx, r.redisKey(accessToken)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return nil
}

// Clear evicts every session entry under this cache's prefix.
func (r *SessionCache) Clear(ctx context.Context) error {
	var cursor uint64
	pattern := fmt.Sprintf("%s:session:*", r.prefix)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan session keys: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete session keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close releases the underlying Redis connection.
func (r *SessionCache) Close() error {
	return r.client.Close()
}

var _ cache.SessionCache = (*SessionCache)(nil)
