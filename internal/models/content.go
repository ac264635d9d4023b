package models

import (
	"time"
)

// ArtifactStatus is the lifecycle of a generated draft.
type ArtifactStatus string

const (
	ArtifactDraft     ArtifactStatus = "DRAFT"
	ArtifactPublished ArtifactStatus = "PUBLISHED"
	ArtifactExpired   ArtifactStatus = "EXPIRED"
)

// ContentUnit is the user-configured subject of a pipeline: topic material plus
// the size settings the cost estimate is computed from.
type ContentUnit struct {
	ID              string       `json:"id" db:"id"`
	OwnerUserID     string       `json:"owner_user_id" db:"owner_user_id"`
	Kind            PipelineKind `json:"kind" db:"kind"`
	Title           string       `json:"title" db:"title"`
	Description     string       `json:"description" db:"description"`
	Keywords        []string     `json:"keywords" db:"keywords"`
	WordCount       int          `json:"word_count" db:"word_count"`
	ImageCount      int          `json:"image_count" db:"image_count"`
	HasPricedItem   bool         `json:"has_priced_item" db:"has_priced_item"`
	ImagePreference string       `json:"image_preference" db:"image_preference"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
}

// GenerationArtifact is a paid draft. Content is replaced, never appended:
// at most one live draft per artifact at any time.
type GenerationArtifact struct {
	ID                string         `json:"id" db:"id"`
	OwnerUserID       string         `json:"owner_user_id" db:"owner_user_id"`
	ContentUnitID     string         `json:"content_unit_id" db:"content_unit_id"`
	Body              string         `json:"body" db:"body"`
	RegenerationCount int            `json:"regeneration_count" db:"regeneration_count"`
	TokensCharged     int64          `json:"tokens_charged" db:"tokens_charged"`
	Status            ArtifactStatus `json:"status" db:"status"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// TargetType tags a publish destination with its platform.
type TargetType string

const (
	TargetTelegram  TargetType = "TELEGRAM"
	TargetWordPress TargetType = "WORDPRESS"
	TargetVK        TargetType = "VK"
)

// PublishTarget is a configured publish destination owned by a user.
type PublishTarget struct {
	ID          string     `json:"id" db:"id"`
	OwnerUserID string     `json:"owner_user_id" db:"owner_user_id"`
	Type        TargetType `json:"type" db:"type"`
	Name        string     `json:"name" db:"name"`
	Endpoint    string     `json:"endpoint" db:"endpoint"` // chat id, site URL or group id
	Credential  string     `json:"-" db:"credential"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// PublicationRecord is the audit trail row appended after a successful publish.
type PublicationRecord struct {
	ID         string    `json:"id" db:"id"`
	ArtifactID string    `json:"artifact_id" db:"artifact_id"`
	TargetID   string    `json:"target_id" db:"target_id"`
	RemoteURL  string    `json:"remote_url" db:"remote_url"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ReadinessItem is one precondition with its blocking/advisory tag, fixed at
// definition time.
type ReadinessItem struct {
	Code     string `json:"code"`
	Label    string `json:"label"`
	Blocking bool   `json:"blocking"`
}

// ReadinessReport is recomputed on every entry to the readiness step and never
// cached beyond one request.
type ReadinessReport struct {
	BlockingItems  []ReadinessItem `json:"blockingItems"`
	AdvisoryItems  []ReadinessItem `json:"advisoryItems"`
	EstimatedCost  int64           `json:"estimatedCost"`
	CurrentBalance int64           `json:"currentBalance"`
}

// Ready reports whether generation may proceed.
func (r *ReadinessReport) Ready() bool {
	return len(r.BlockingItems) == 0
}
