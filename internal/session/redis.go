package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "testbot:session:"

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore stores sessions as JSON values that expire ttl after the
// last write. A zero ttl keeps them until deleted.
func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	return &redisStore{client: client, ttl: ttl}
}

func (r *redisStore) Get(ctx context.Context, userID string) (Session, error) {
	b, err := r.client.Get(ctx, keyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session %s: %w", userID, err)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", userID, err)
	}
	return s, nil
}

func (r *redisStore) Put(ctx context.Context, s Session) error {
	s.UpdatedAt = time.Now()
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.UserID, err)
	}
	if err := r.client.Set(ctx, keyPrefix+s.UserID, b, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", s.UserID, err)
	}
	return nil
}

func (r *redisStore) Delete(ctx context.Context, userID string) error {
	return r.client.Del(ctx, keyPrefix+userID).Err()
}
