package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// IdempotencyGuard collapses duplicate concurrent triggers with short-lived
// Redis locks keyed by (user, action). Failing to acquire means someone else
// is already doing the work; callers treat that as a benign no-op.
type IdempotencyGuard struct {
	redis *redis.Client
}

func NewIdempotencyGuard(redisClient *redis.Client) *IdempotencyGuard {
	return &IdempotencyGuard{redis: redisClient}
}

func (g *IdempotencyGuard) key(userID, action string) string {
	return fmt.Sprintf("lock:%s:%s", userID, action)
}

// Acquire takes the lock with a single SETNX. Returns false when the lock is
// already held.
func (g *IdempotencyGuard) Acquire(ctx context.Context, userID, action string, ttl time.Duration) (bool, error) {
	ok, err := g.redis.SetNX(ctx, g.key(userID, action), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire failed: %w", err)
	}
	return ok, nil
}

// Release deletes the lock. Called unconditionally on every exit path; a
// failed delete only shortens nothing (the TTL still bounds the hold).
func (g *IdempotencyGuard) Release(ctx context.Context, userID, action string) {
	if err := g.redis.Del(ctx, g.key(userID, action)).Err(); err != nil {
		log.Printf("[LOCK] Failed to release %s for user %s: %v", action, userID, err)
	}
}
