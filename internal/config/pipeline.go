package config

import (
	"os"
	"strconv"
	"time"
)

type PipelineConfig struct {
	FreeRegenerations    int
	TokensPerWord        int64
	TokensPerImage       int64
	RegenerationCost     int64
	CheckpointTTL        time.Duration
	PublishLockTTL       time.Duration
	ActionLockTTL        time.Duration
	MaxGenerationPerUser int
	RateLimitWindow      time.Duration
	RetryBaseDelay       time.Duration
	RetryMaxDelay        time.Duration
	RetryMaxAttempts     int
}

func LoadPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		FreeRegenerations:    getEnvAsInt("PIPELINE_FREE_REGENERATIONS", 2),
		TokensPerWord:        getEnvAsInt64("PIPELINE_TOKENS_PER_WORD", 1),
		TokensPerImage:       getEnvAsInt64("PIPELINE_TOKENS_PER_IMAGE", 20),
		RegenerationCost:     getEnvAsInt64("PIPELINE_REGENERATION_COST", 25),
		CheckpointTTL:        getEnvAsDuration("PIPELINE_CHECKPOINT_TTL", 24*time.Hour),
		PublishLockTTL:       getEnvAsDuration("PIPELINE_PUBLISH_LOCK_TTL", 30*time.Second),
		ActionLockTTL:        getEnvAsDuration("PIPELINE_ACTION_LOCK_TTL", 10*time.Second),
		MaxGenerationPerUser: getEnvAsInt("PIPELINE_MAX_GEN_PER_USER", 10),
		RateLimitWindow:      getEnvAsDuration("PIPELINE_RATE_LIMIT_WINDOW", 1*time.Hour),
		RetryBaseDelay:       getEnvAsDuration("PIPELINE_RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:        getEnvAsDuration("PIPELINE_RETRY_MAX_DELAY", 10*time.Second),
		RetryMaxAttempts:     getEnvAsInt("PIPELINE_RETRY_MAX_ATTEMPTS", 3),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
