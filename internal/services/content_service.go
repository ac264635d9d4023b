package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/contentforge/backend/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ContentService holds CRUD for content units, generation artifacts, publish
// targets and publication records.
type ContentService struct {
	db *sql.DB
}

func NewContentService(db *sql.DB) *ContentService {
	return &ContentService{db: db}
}

func (s *ContentService) GetContentUnit(ctx context.Context, unitID string) (*models.ContentUnit, error) {
	unit := &models.ContentUnit{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_user_id, kind, title, description, keywords,
		       word_count, image_count, has_priced_item, image_preference, created_at
		FROM content_units
		WHERE id = $1
	`, unitID).Scan(
		&unit.ID, &unit.OwnerUserID, &unit.Kind, &unit.Title, &unit.Description,
		pq.Array(&unit.Keywords), &unit.WordCount, &unit.ImageCount,
		&unit.HasPricedItem, &unit.ImagePreference, &unit.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrContentUnitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content unit: %w", err)
	}
	return unit, nil
}

func (s *ContentService) UpdateContentUnitField(ctx context.Context, unitID, field, value string) error {
	var query string
	switch field {
	case "description":
		query = `UPDATE content_units SET description = $1 WHERE id = $2`
	case "keyword":
		query = `UPDATE content_units SET keywords = array_append(keywords, $1) WHERE id = $2`
	case "image_preference":
		query = `UPDATE content_units SET image_preference = $1 WHERE id = $2`
	default:
		return fmt.Errorf("unknown content unit field %q", field)
	}
	result, err := s.db.ExecContext(ctx, query, value, unitID)
	if err != nil {
		return fmt.Errorf("failed to update content unit: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrContentUnitNotFound
	}
	return nil
}

// CreateArtifact inserts the first draft for a content unit.
func (s *ContentService) CreateArtifact(ctx context.Context, ownerUserID, unitID, body string, tokensCharged int64) (*models.GenerationArtifact, error) {
	now := time.Now()
	artifact := &models.GenerationArtifact{
		ID:            uuid.NewString(),
		OwnerUserID:   ownerUserID,
		ContentUnitID: unitID,
		Body:          body,
		TokensCharged: tokensCharged,
		Status:        models.ArtifactDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generation_artifacts
		(id, owner_user_id, content_unit_id, body, regeneration_count, tokens_charged, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, 'DRAFT', $6, $6)
	`, artifact.ID, ownerUserID, unitID, body, tokensCharged, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact: %w", err)
	}
	return artifact, nil
}

func (s *ContentService) GetArtifact(ctx context.Context, artifactID string) (*models.GenerationArtifact, error) {
	artifact := &models.GenerationArtifact{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_user_id, content_unit_id, body, regeneration_count,
		       tokens_charged, status, created_at, updated_at
		FROM generation_artifacts
		WHERE id = $1
	`, artifactID).Scan(
		&artifact.ID, &artifact.OwnerUserID, &artifact.ContentUnitID, &artifact.Body,
		&artifact.RegenerationCount, &artifact.TokensCharged, &artifact.Status,
		&artifact.CreatedAt, &artifact.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artifact %s not found", artifactID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch artifact: %w", err)
	}
	return artifact, nil
}

// ReplaceArtifactBody swaps the draft in after a successful regeneration: the
// old content is overwritten only once a new draft exists, keeping exactly one
// live draft per artifact.
func (s *ContentService) ReplaceArtifactBody(ctx context.Context, artifactID, body string, addedCharge int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE generation_artifacts
		SET body = $1,
		    regeneration_count = regeneration_count + 1,
		    tokens_charged = tokens_charged + $2,
		    updated_at = NOW()
		WHERE id = $3 AND status = 'DRAFT'
	`, body, addedCharge, artifactID)
	if err != nil {
		return fmt.Errorf("failed to replace artifact body: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("artifact %s is not a live draft", artifactID)
	}
	return nil
}

// ExpireDraft flips a draft to EXPIRED and reports whether this call made the
// transition. Refunds are gated on winning the flip, so an artifact is never
// refunded twice.
func (s *ContentService) ExpireDraft(ctx context.Context, artifactID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE generation_artifacts SET status = 'EXPIRED', updated_at = NOW()
		WHERE id = $1 AND status = 'DRAFT'
	`, artifactID)
	if err != nil {
		return false, fmt.Errorf("failed to expire artifact %s: %w", artifactID, err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (s *ContentService) MarkArtifactStatus(ctx context.Context, artifactID string, status models.ArtifactStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE generation_artifacts SET status = $1, updated_at = NOW() WHERE id = $2
	`, string(status), artifactID)
	if err != nil {
		return fmt.Errorf("failed to mark artifact %s: %w", artifactID, err)
	}
	return nil
}

// ListAbandonedDrafts returns draft artifacts untouched for longer than age,
// used by the reconciliation sweep.
func (s *ContentService) ListAbandonedDrafts(ctx context.Context, age time.Duration) ([]models.GenerationArtifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_user_id, content_unit_id, body, regeneration_count,
		       tokens_charged, status, created_at, updated_at
		FROM generation_artifacts
		WHERE status = 'DRAFT' AND updated_at < $1
	`, time.Now().Add(-age))
	if err != nil {
		return nil, fmt.Errorf("failed to list abandoned drafts: %w", err)
	}
	defer rows.Close()

	artifacts := []models.GenerationArtifact{}
	for rows.Next() {
		var artifact models.GenerationArtifact
		if err := rows.Scan(
			&artifact.ID, &artifact.OwnerUserID, &artifact.ContentUnitID, &artifact.Body,
			&artifact.RegenerationCount, &artifact.TokensCharged, &artifact.Status,
			&artifact.CreatedAt, &artifact.UpdatedAt,
		); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, rows.Err()
}

func (s *ContentService) GetPublishTarget(ctx context.Context, targetID string) (*models.PublishTarget, error) {
	target := &models.PublishTarget{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_user_id, type, name, endpoint, credential, created_at
		FROM publish_targets
		WHERE id = $1
	`, targetID).Scan(
		&target.ID, &target.OwnerUserID, &target.Type, &target.Name,
		&target.Endpoint, &target.Credential, &target.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTargetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch publish target: %w", err)
	}
	return target, nil
}

// RecordPublication appends the audit row for a successful remote publish.
func (s *ContentService) RecordPublication(ctx context.Context, artifactID, targetID, remoteURL string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO publication_records (id, artifact_id, target_id, remote_url, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), artifactID, targetID, remoteURL, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record publication: %w", err)
	}
	return nil
}
