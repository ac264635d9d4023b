package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/contentforge/backend/internal/models"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestCheckpointStore(t *testing.T) {
	redisClient, redisMock := redismock.NewClientMock()
	store := NewCheckpointStore(redisClient, 24*time.Hour)

	checkpoint := &models.PipelineCheckpoint{
		UserID:        "user1",
		PipelineKind:  models.PipelineArticle,
		CurrentStep:   models.StepConfirmCost,
		ContentUnitID: "unit1",
		TargetID:      "target1",
	}

	t.Run("put writes with ttl", func(t *testing.T) {
		data, _ := json.Marshal(checkpoint)
		redisMock.ExpectSet("checkpoint:user1", string(data), 24*time.Hour).SetVal("OK")

		err := store.Put(context.Background(), checkpoint)
		assert.NoError(t, err)
	})

	t.Run("get round-trips", func(t *testing.T) {
		data, _ := json.Marshal(checkpoint)
		redisMock.ExpectGet("checkpoint:user1").SetVal(string(data))

		loaded, err := store.Get(context.Background(), "user1")
		assert.NoError(t, err)
		assert.Equal(t, models.StepConfirmCost, loaded.CurrentStep)
		assert.Equal(t, "unit1", loaded.ContentUnitID)
	})

	t.Run("missing key means no pipeline", func(t *testing.T) {
		redisMock.ExpectGet("checkpoint:ghost").RedisNil()

		_, err := store.Get(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrNoCheckpoint)
	})

	t.Run("corrupt payload surfaces an error", func(t *testing.T) {
		redisMock.ExpectGet("checkpoint:user1").SetVal("not json")

		_, err := store.Get(context.Background(), "user1")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "decode")
	})

	t.Run("delete removes the key", func(t *testing.T) {
		redisMock.ExpectDel("checkpoint:user1").SetVal(1)

		err := store.Delete(context.Background(), "user1")
		assert.NoError(t, err)
	})
}

func TestIdempotencyGuard(t *testing.T) {
	redisClient, redisMock := redismock.NewClientMock()
	guard := NewIdempotencyGuard(redisClient)

	t.Run("acquires a free lock", func(t *testing.T) {
		redisMock.ExpectSetNX("lock:user1:publish:target1", "1", 30*time.Second).SetVal(true)

		ok, err := guard.Acquire(context.Background(), "user1", "publish:target1", 30*time.Second)
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("held lock is not re-acquired", func(t *testing.T) {
		redisMock.ExpectSetNX("lock:user1:publish:target1", "1", 30*time.Second).SetVal(false)

		ok, err := guard.Acquire(context.Background(), "user1", "publish:target1", 30*time.Second)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("locks are per action", func(t *testing.T) {
		redisMock.ExpectSetNX("lock:user1:confirm", "1", 10*time.Second).SetVal(true)

		ok, err := guard.Acquire(context.Background(), "user1", "confirm", 10*time.Second)
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("release deletes the key", func(t *testing.T) {
		redisMock.ExpectDel("lock:user1:confirm").SetVal(1)

		guard.Release(context.Background(), "user1", "confirm")
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}
