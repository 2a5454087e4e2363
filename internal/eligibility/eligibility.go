// Package eligibility decides whether a user may use the bot, typically by
// checking membership of a channel.
package eligibility

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

type Checker interface {
	IsEligible(ctx context.Context, userID string) (bool, error)
}

// Open admits everyone.
type Open struct{}

func (Open) IsEligible(context.Context, string) (bool, error) { return true, nil }

// Static admits a fixed set of ids.
type Static map[string]struct{}

func NewStatic(ids []string) Static {
	s := Static{}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s Static) IsEligible(_ context.Context, userID string) (bool, error) {
	_, ok := s[userID]
	return ok, nil
}

// RedisSet admits members of a Redis set that an external membership sync
// keeps up to date.
type RedisSet struct {
	client *redis.Client
	key    string
}

func NewRedisSet(client *redis.Client, key string) *RedisSet {
	if key == "" {
		key = "testbot:eligible"
	}
	return &RedisSet{client: client, key: key}
}

func (r *RedisSet) IsEligible(ctx context.Context, userID string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.key, userID).Result()
	if err != nil {
		return false, fmt.Errorf("eligibility lookup %s: %w", userID, err)
	}
	return ok, nil
}

// Gate wraps a Checker and fails closed: lookup errors are logged and the
// user is treated as not eligible.
type Gate struct {
	checker Checker
}

func NewGate(c Checker) *Gate {
	if c == nil {
		c = Open{}
	}
	return &Gate{checker: c}
}

func (g *Gate) Allow(ctx context.Context, userID string) bool {
	ok, err := g.checker.IsEligible(ctx, userID)
	if err != nil {
		log.Printf("eligibility: %v", err)
		return false
	}
	return ok
}
