package models

import (
	"time"
)

// PipelineKind selects which publication pipeline a checkpoint belongs to.
type PipelineKind string

const (
	PipelineArticle PipelineKind = "ARTICLE"
	PipelineSocial  PipelineKind = "SOCIAL"
)

// PipelineStep is the persisted position inside a pipeline. The checkpoint's
// step is the single source of truth for which actions are legal next.
type PipelineStep string

const (
	StepReadinessCheck PipelineStep = "READINESS_CHECK"
	StepResolveItem    PipelineStep = "RESOLVE_ITEM"
	StepConfirmCost    PipelineStep = "CONFIRM_COST"
	StepGenerating     PipelineStep = "GENERATING"
	StepReview         PipelineStep = "REVIEW"
	StepPublishing     PipelineStep = "PUBLISHING"
)

// PipelineCheckpoint is the only per-user state that survives between webhook
// calls besides the ledger and the content store. Keyed by user id; its absence
// means no pipeline in flight.
type PipelineCheckpoint struct {
	UserID        string       `json:"user_id"`
	PipelineKind  PipelineKind `json:"pipeline_kind"`
	CurrentStep   PipelineStep `json:"current_step"`
	ContentUnitID string       `json:"content_unit_id"`
	TargetID      string       `json:"target_id"`
	ArtifactID    string       `json:"artifact_id,omitempty"`
	ResolvingItem string       `json:"resolving_item,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Webhook actions understood by the coordinator.
const (
	ActionStartArticle  = "start_article"
	ActionStartSocial   = "start_social"
	ActionResolveItem   = "resolve_item"
	ActionBack          = "back"
	ActionConfirmCost   = "confirm_cost"
	ActionRegenerate    = "regenerate"
	ActionPublish       = "publish"
	ActionCancel        = "cancel"
)

// WebhookRequest is the envelope the front end delivers, one logical action
// per request.
type WebhookRequest struct {
	UserID  string            `json:"userId" validate:"required"`
	Action  string            `json:"action" validate:"required"`
	Payload map[string]string `json:"payload"`
}

// RenderInstruction is what the core hands back to the front end: screen text
// plus the actions that are legal from the resulting state. The core never
// talks to the transport layer directly.
type RenderInstruction struct {
	Text        string   `json:"text"`
	NextActions []string `json:"nextActions"`
}
