package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/contentforge/backend/internal/models"
	"github.com/go-redis/redis/v8"
)

// CheckpointStore persists each user's pipeline position in Redis with a TTL.
// A missing key means no pipeline in flight for that user.
type CheckpointStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewCheckpointStore(redisClient *redis.Client, ttl time.Duration) *CheckpointStore {
	return &CheckpointStore{redis: redisClient, ttl: ttl}
}

func (s *CheckpointStore) key(userID string) string {
	return fmt.Sprintf("checkpoint:%s", userID)
}

// Get loads the checkpoint for a user. Returns ErrNoCheckpoint when absent.
func (s *CheckpointStore) Get(ctx context.Context, userID string) (*models.PipelineCheckpoint, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint read failed: %w", err)
	}

	var checkpoint models.PipelineCheckpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("checkpoint decode failed: %w", err)
	}
	return &checkpoint, nil
}

// Put writes the checkpoint, resetting its TTL. Every non-terminal transition
// overwrites the record in full.
func (s *CheckpointStore) Put(ctx context.Context, checkpoint *models.PipelineCheckpoint) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("checkpoint encode failed: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(checkpoint.UserID), string(data), s.ttl).Err(); err != nil {
		return fmt.Errorf("checkpoint write failed: %w", err)
	}
	return nil
}

// Delete removes the checkpoint on terminal transitions.
func (s *CheckpointStore) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("checkpoint delete failed: %w", err)
	}
	return nil
}
