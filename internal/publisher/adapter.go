package publisher

import (
	"context"
	"fmt"

	"github.com/contentforge/backend/internal/models"
	"github.com/contentforge/backend/internal/services"
)

// Adapter is the per-platform capability set. Publishing is at-least-once;
// the remote end is responsible for idempotency detection.
type Adapter interface {
	// Publish pushes the artifact body to the target and returns the remote URL
	// when the platform reports one.
	Publish(ctx context.Context, target *models.PublishTarget, artifact *models.GenerationArtifact) (string, error)
	// Validate checks that the target's credentials and endpoint are usable.
	Validate(ctx context.Context, target *models.PublishTarget) error
	// Delete removes a previously published item, best effort.
	Delete(ctx context.Context, target *models.PublishTarget, remoteID string) error
}

// Registry selects an adapter by the target-type tag stored on the target
// record.
type Registry struct {
	adapters map[models.TargetType]Adapter
}

var _ services.TargetPublisher = (*Registry)(nil)

func NewRegistry(retry *services.RetryingClient) *Registry {
	return &Registry{
		adapters: map[models.TargetType]Adapter{
			models.TargetTelegram:  NewTelegramAdapter(retry),
			models.TargetWordPress: NewWordPressAdapter(retry),
			models.TargetVK:        NewVKAdapter(retry),
		},
	}
}

// Publish dispatches to the adapter for the target's platform.
func (r *Registry) Publish(ctx context.Context, target *models.PublishTarget, artifact *models.GenerationArtifact) (string, error) {
	adapter, ok := r.adapters[target.Type]
	if !ok {
		return "", fmt.Errorf("%w: no adapter for target type %s", services.ErrPublishFailed, target.Type)
	}
	return adapter.Publish(ctx, target, artifact)
}

// Validate dispatches a credential check to the adapter for the target.
func (r *Registry) Validate(ctx context.Context, target *models.PublishTarget) error {
	adapter, ok := r.adapters[target.Type]
	if !ok {
		return fmt.Errorf("no adapter for target type %s", target.Type)
	}
	return adapter.Validate(ctx, target)
}
