package services

import (
	"context"

	"github.com/contentforge/backend/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, unit *models.ContentUnit, kind models.PipelineKind) (*GeneratedContent, error) {
	args := m.Called(ctx, unit, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GeneratedContent), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, target *models.PublishTarget, artifact *models.GenerationArtifact) (string, error) {
	args := m.Called(ctx, target, artifact)
	return args.String(0), args.Error(1)
}
