package services

import "errors"

// Pipeline error taxonomy. Every one of these resolves to a render
// instruction; none is fatal to the process.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrGenerationFailed    = errors.New("generation failed")
	ErrPublishFailed       = errors.New("publish failed")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrNoCheckpoint        = errors.New("no pipeline in flight")
	ErrAccountNotFound     = errors.New("account not found")
	ErrContentUnitNotFound = errors.New("content unit not found")
	ErrTargetNotFound      = errors.New("publish target not found")
)
