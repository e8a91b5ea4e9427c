package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSessionTTL = 7 * 24 * time.Hour

// RedisStore keeps the session in Redis. Used by hosted deployments of the
// flow core where many users share one process; each store instance is bound
// to a single user key.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed session store for the given user key.
// Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix, userKey string) *RedisStore {
	if prefix == "" {
		prefix = "studysync:session:"
	}
	return &RedisStore{
		client: client,
		key:    prefix + userKey,
		ttl:    defaultSessionTTL,
	}
}

func (s *RedisStore) Get(ctx context.Context) (*Session, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotSignedIn
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		_ = s.client.Del(ctx, s.key).Err()
		return nil, ErrNotSignedIn
	}

	// If the token itself has expired, treat the stored value as missing.
	if claims, err := ParseClaims(sess.Token); err == nil && claims.IsExpired() {
		_ = s.client.Del(ctx, s.key).Err()
		return nil, ErrNotSignedIn
	}

	return &sess, nil
}

func (s *RedisStore) Set(ctx context.Context, sess *Session) error {
	if !sess.IsAuthenticated() {
		return ErrNotSignedIn
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Let the entry expire with the token when its claims are readable.
	ttl := s.ttl
	if claims, err := ParseClaims(sess.Token); err == nil && claims.ExpiresAt != nil {
		if exp := time.Until(claims.ExpiresAt.Time); exp > 0 {
			ttl = exp
		} else {
			ttl = time.Second
		}
	}

	return s.client.Set(ctx, s.key, data, ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
