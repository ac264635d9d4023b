package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/contentforge/backend/internal/audit"
	"github.com/contentforge/backend/internal/config"
	"github.com/contentforge/backend/internal/models"
	"github.com/go-redis/redis/v8"
)

// GeneratedContent is what the content backend yields for one call.
type GeneratedContent struct {
	Body       string
	WordCount  int
	ImageCount int
}

// ContentGenerator is the black-box paid generation capability.
type ContentGenerator interface {
	Generate(ctx context.Context, unit *models.ContentUnit, kind models.PipelineKind) (*GeneratedContent, error)
}

// TargetPublisher pushes a finished draft to a remote platform.
type TargetPublisher interface {
	Publish(ctx context.Context, target *models.PublishTarget, artifact *models.GenerationArtifact) (string, error)
}

// PipelineCoordinator sequences readiness, cost confirmation, paid generation,
// review/regeneration and publication across independent webhook calls. The
// checkpoint's current step is the single source of truth for which actions
// are legal; everything else is re-hydrated per request.
type PipelineCoordinator struct {
	ledger      *TokenLedgerService
	content     *ContentService
	readiness   *ReadinessService
	checkpoints *CheckpointStore
	guard       *IdempotencyGuard
	generator   ContentGenerator
	publisher   TargetPublisher
	redis       *redis.Client
	config      *config.PipelineConfig
	audit       *audit.Logger
}

func NewPipelineCoordinator(
	ledger *TokenLedgerService,
	content *ContentService,
	readiness *ReadinessService,
	checkpoints *CheckpointStore,
	guard *IdempotencyGuard,
	generator ContentGenerator,
	publisher TargetPublisher,
	redisClient *redis.Client,
	cfg *config.PipelineConfig,
) *PipelineCoordinator {
	return &PipelineCoordinator{
		ledger:      ledger,
		content:     content,
		readiness:   readiness,
		checkpoints: checkpoints,
		guard:       guard,
		generator:   generator,
		publisher:   publisher,
		redis:       redisClient,
		config:      cfg,
		audit:       audit.NewLogger(),
	}
}

// HandleAction processes one logical user action and returns the render
// instruction for the resulting state. Every handled failure resolves to a
// render instruction; the returned error only reports infrastructure faults.
func (c *PipelineCoordinator) HandleAction(ctx context.Context, userID, action string, payload map[string]string) (*models.RenderInstruction, error) {
	log.Printf("[PIPELINE] Action %s from user %s", action, userID)

	switch action {
	case models.ActionStartArticle:
		return c.startPipeline(ctx, userID, models.PipelineArticle, payload)
	case models.ActionStartSocial:
		return c.startPipeline(ctx, userID, models.PipelineSocial, payload)
	}

	checkpoint, err := c.checkpoints.Get(ctx, userID)
	if err == ErrNoCheckpoint {
		return neutralRender("Nothing to do here. Start a new pipeline first."), nil
	}
	if err != nil {
		return nil, err
	}

	switch action {
	case models.ActionResolveItem:
		return c.resolveItem(ctx, checkpoint, payload)
	case models.ActionBack:
		return c.backToReadiness(ctx, checkpoint)
	case models.ActionConfirmCost:
		return c.confirmCost(ctx, checkpoint)
	case models.ActionRegenerate:
		return c.regenerate(ctx, checkpoint)
	case models.ActionPublish:
		return c.publish(ctx, checkpoint)
	case models.ActionCancel:
		return c.cancel(ctx, checkpoint)
	default:
		return neutralRender("Nothing to do here."), nil
	}
}

// GetReadiness evaluates a content unit outside an active pipeline, for
// preview screens.
func (c *PipelineCoordinator) GetReadiness(ctx context.Context, unitID, userID string) (*models.ReadinessReport, error) {
	return c.readiness.Evaluate(ctx, unitID, userID)
}

// startPipeline enters a fresh pipeline. An in-flight pipeline for the same
// user is forcibly terminated first, with no refund: unresolved charges are
// bounded because charges land only immediately before an awaited backend call.
func (c *PipelineCoordinator) startPipeline(ctx context.Context, userID string, kind models.PipelineKind, payload map[string]string) (*models.RenderInstruction, error) {
	unitID := payload["contentUnitId"]
	targetID := payload["targetId"]
	if unitID == "" || targetID == "" {
		return neutralRender("Pick a content unit and a publish target first."), nil
	}

	interrupted := ""
	if old, err := c.checkpoints.Get(ctx, userID); err == nil {
		if err := c.checkpoints.Delete(ctx, userID); err != nil {
			return nil, err
		}
		interrupted = fmt.Sprintf("Your previous %s flow was interrupted. ", flowName(old.PipelineKind))
		log.Printf("[PIPELINE] User %s interrupted %s flow at step %s", userID, old.PipelineKind, old.CurrentStep)
	} else if err != ErrNoCheckpoint {
		return nil, err
	}

	unit, err := c.content.GetContentUnit(ctx, unitID)
	if err != nil {
		if errors.Is(err, ErrContentUnitNotFound) {
			return neutralRender(interrupted + "That content unit no longer exists."), nil
		}
		return nil, err
	}
	if unit.OwnerUserID != userID {
		return neutralRender(interrupted + "That content unit no longer exists."), nil
	}

	if _, err := c.content.GetPublishTarget(ctx, targetID); err != nil {
		if errors.Is(err, ErrTargetNotFound) {
			return neutralRender(interrupted + "That publish target no longer exists."), nil
		}
		return nil, err
	}

	checkpoint := &models.PipelineCheckpoint{
		UserID:        userID,
		PipelineKind:  kind,
		CurrentStep:   models.StepReadinessCheck,
		ContentUnitID: unitID,
		TargetID:      targetID,
		CreatedAt:     time.Now(),
	}

	render, err := c.renderReadiness(ctx, checkpoint)
	if err != nil {
		return nil, err
	}
	render.Text = interrupted + render.Text
	return render, nil
}

// renderReadiness re-evaluates preconditions and advances to ConfirmCost when
// nothing blocks. The report itself is never cached; the checkpoint only
// remembers the step.
func (c *PipelineCoordinator) renderReadiness(ctx context.Context, checkpoint *models.PipelineCheckpoint) (*models.RenderInstruction, error) {
	report, err := c.readiness.Evaluate(ctx, checkpoint.ContentUnitID, checkpoint.UserID)
	if err != nil {
		return nil, err
	}

	if report.Ready() {
		checkpoint.CurrentStep = models.StepConfirmCost
		checkpoint.ResolvingItem = ""
		if err := c.checkpoints.Put(ctx, checkpoint); err != nil {
			return nil, err
		}
		text := fmt.Sprintf("Everything is ready. Generation will cost %d tokens (balance: %d).",
			report.EstimatedCost, report.CurrentBalance)
		for _, item := range report.AdvisoryItems {
			text += fmt.Sprintf("\nOptional: %s", item.Label)
		}
		return &models.RenderInstruction{
			Text:        text,
			NextActions: []string{models.ActionConfirmCost, models.ActionCancel},
		}, nil
	}

	checkpoint.CurrentStep = models.StepReadinessCheck
	checkpoint.ResolvingItem = ""
	if err := c.checkpoints.Put(ctx, checkpoint); err != nil {
		return nil, err
	}

	text := "A few things are missing before generation:"
	for _, item := range report.BlockingItems {
		text += fmt.Sprintf("\n- %s", item.Label)
	}
	for _, item := range report.AdvisoryItems {
		text += fmt.Sprintf("\nOptional: %s", item.Label)
	}
	return &models.RenderInstruction{
		Text:        text,
		NextActions: []string{models.ActionResolveItem, models.ActionCancel},
	}, nil
}

// resolveItem runs one readiness sub-flow. Without a value it prompts and
// parks the checkpoint in the sub-flow step; with a value it applies the fix
// and returns to the readiness screen.
func (c *PipelineCoordinator) resolveItem(ctx context.Context, checkpoint *models.PipelineCheckpoint, payload map[string]string) (*models.RenderInstruction, error) {
	if checkpoint.CurrentStep != models.StepReadinessCheck && checkpoint.CurrentStep != models.StepResolveItem {
		return neutralRender("Nothing to do here."), nil
	}

	item := payload["item"]
	if item == "" {
		item = checkpoint.ResolvingItem
	}
	if item == "" || !ResolvableItem(checkpoint.PipelineKind, item) {
		return c.renderReadiness(ctx, checkpoint)
	}

	value := payload["value"]
	if value == "" {
		checkpoint.CurrentStep = models.StepResolveItem
		checkpoint.ResolvingItem = item
		if err := c.checkpoints.Put(ctx, checkpoint); err != nil {
			return nil, err
		}
		return &models.RenderInstruction{
			Text:        fmt.Sprintf("Send a value for %q, or go back.", item),
			NextActions: []string{models.ActionResolveItem, models.ActionBack},
		}, nil
	}

	field := item
	if item == "keywords" {
		field = "keyword"
	}
	if item == "priced_item_or_images" {
		field = "image_preference"
	}
	if err := c.content.UpdateContentUnitField(ctx, checkpoint.ContentUnitID, field, value); err != nil {
		if errors.Is(err, ErrContentUnitNotFound) {
			return neutralRender("That content unit no longer exists."), nil
		}
		return nil, err
	}
	return c.renderReadiness(ctx, checkpoint)
}

func (c *PipelineCoordinator) backToReadiness(ctx context.Context, checkpoint *models.PipelineCheckpoint) (*models.RenderInstruction, error) {
	if checkpoint.CurrentStep != models.StepResolveItem {
		return neutralRender("Nothing to do here."), nil
	}
	return c.renderReadiness(ctx, checkpoint)
}

// confirmCost charges before invoking generation: debit-first, refund on
// failure, never the reverse. A second confirm during generation is rejected
// by the step check, and a concurrent double-tap collapses on the action lock.
func (c *PipelineCoordinator) confirmCost(ctx context.Context, checkpoint *models.PipelineCheckpoint) (*models.RenderInstruction, error) {
	if checkpoint.CurrentStep != models.StepConfirmCost {
		return neutralRender("Nothing to confirm right now."), nil
	}

	acquired, err := c.guard.Acquire(ctx, checkpoint.UserID, "confirm", c.config.ActionLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return neutralRender("Already working on it."), nil
	}
	defer c.guard.Release(ctx, checkpoint.UserID, "confirm")

	if err := c.checkRateLimit(ctx, checkpoint.UserID); err != nil {
		if errors.Is(err, ErrRateLimited) {
			return &models.RenderInstruction{
				Text:        "You have hit the generation limit for now. Try again later.",
				NextActions: []string{models.ActionConfirmCost, models.ActionCancel},
			}, nil
		}
		return nil, err
	}

	unit, err := c.content.GetContentUnit(ctx, checkpoint.ContentUnitID)
	if err != nil {
		return nil, err
	}
	account, err := c.ledger.GetAccount(ctx, checkpoint.UserID)
	if err != nil {
		return nil, err
	}

	cost := c.readiness.EstimateCost(unit)
	note := fmt.Sprintf("generation for unit %s", unit.ID)
	if _, err := c.ledger.Charge(ctx, account, cost, models.EntryGeneration, note); err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return &models.RenderInstruction{
				Text:        fmt.Sprintf("Not enough tokens: generation costs %d. Top up and try again.", cost),
				NextActions: []string{models.ActionConfirmCost, models.ActionCancel},
			}, nil
		}
		return nil, err
	}

	checkpoint.CurrentStep = models.StepGenerating
	if err := c.checkpoints.Put(ctx, checkpoint); err != nil {
		c.refundBestEffort(ctx, account, cost, fmt.Sprintf("refund: checkpoint write failed for unit %s", unit.ID))
		return nil, err
	}
	c.incrementRateLimit(ctx, checkpoint.UserID)

	return c.runGeneration(ctx, checkpoint, unit, account, cost)
}

// runGeneration awaits the backend call taken immediately after a charge. On
// failure the charge is refunded and the checkpoint returns to ConfirmCost.
func (c *PipelineCoordinator) runGeneration(ctx context.Context, checkpoint *models.PipelineCheckpoint, unit *models.ContentUnit, account *models.Account, charged int64) (*models.RenderInstruction, error) {
	generated, err := c.generator.Generate(ctx, unit, checkpoint.PipelineKind)
	if err != nil {
		log.Printf("[PIPELINE] Generation failed for user %s: %v", checkpoint.UserID, err)
		c.refundBestEffort(ctx, account, charged, fmt.Sprintf("refund: generation failed for unit %s", unit.ID))

		checkpoint.CurrentStep = models.StepConfirmCost
		if err := c.checkpoints.Put(ctx, checkpoint); err != nil {
			return nil, err
		}
		return &models.RenderInstruction{
			Text:        "Generation failed; your tokens were returned. Try again?",
			NextActions: []string{models.ActionConfirmCost, models.ActionCancel},
		}, nil
	}

	// The user may have cancelled while the backend call was in flight; the
	// cancel path saw no artifact to refund, so the refund happens here.
	live, err := c.checkpoints.Get(ctx, checkpoint.UserID)
	if err != nil && err != ErrNoCheckpoint {
		return nil, err
	}
	if err == ErrNoCheckpoint || live.CurrentStep != models.StepGenerating || !live.CreatedAt.Equal(checkpoint.CreatedAt) {
		log.Printf("[PIPELINE] Pipeline for user %s ended during generation; discarding result", checkpoint.UserID)
		c.refundBestEffort(ctx, account, charged, fmt.Sprintf("refund: pipeline cancelled during generation for unit %s", unit.ID))
		return neutralRender("That pipeline was cancelled; your tokens were returned."), nil
	}

	if checkpoint.ArtifactID == "" {
		artifact, err := c.content.CreateArtifact(ctx, checkpoint.UserID, unit.ID, generated.Body, charged)
		if err != nil {
			c.refundBestEffort(ctx, account, charged, fmt.Sprintf("refund: draft store failed for unit %s", unit.ID))
			return nil, err
		}
		checkpoint.ArtifactID = artifact.ID
	} else {
		if err := c.content.ReplaceArtifactBody(ctx, checkpoint.ArtifactID, generated.Body, charged); err != nil {
			c.refundBestEffort(ctx, account, charged, fmt.Sprintf("refund: draft store failed for unit %s", unit.ID))
			return nil, err
		}
	}

	checkpoint.CurrentStep = models.StepReview
	if err := c.checkpoints.Put(ctx, checkpoint); err != nil {
		return nil, err
	}

	return &models.RenderInstruction{
		Text:        fmt.Sprintf("Here is your draft (%d words):\n\n%s", generated.WordCount, generated.Body),
		NextActions: []string{models.ActionPublish, models.ActionRegenerate, models.ActionCancel},
	}, nil
}

// regenerate replaces the draft. The first N regenerations are free; past the
// threshold the charge-before-generate protocol applies again. A failed
// regeneration never touches the previously displayed draft.
func (c *PipelineCoordinator) regenerate(ctx context.Context, checkpoint *models.PipelineCheckpoint) (*models.RenderInstruction, error) {
	if checkpoint.CurrentStep != models.StepReview || checkpoint.ArtifactID == "" {
		return neutralRender("There is no draft to regenerate."), nil
	}

	acquired, err := c.guard.Acquire(ctx, checkpoint.UserID, "regenerate", c.config.ActionLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return neutralRender("Already regenerating."), nil
	}
	defer c.guard.Release(ctx, checkpoint.UserID, "regenerate")

	artifact, err := c.content.GetArtifact(ctx, checkpoint.ArtifactID)
	if err != nil {
		return nil, err
	}
	unit, err := c.content.GetContentUnit(ctx, checkpoint.ContentUnitID)
	if err != nil {
		return nil, err
	}
	account, err := c.ledger.GetAccount(ctx, checkpoint.UserID)
	if err != nil {
		return nil, err
	}

	var charged int64
	if artifact.RegenerationCount >= c.config.FreeRegenerations {
		charged = c.config.RegenerationCost
		note := fmt.Sprintf("regeneration %d of artifact %s", artifact.RegenerationCount+1, artifact.ID)
		if _, err := c.ledger.Charge(ctx, account, charged, models.EntryRegeneration, note); err != nil {
			if errors.Is(err, ErrInsufficientBalance) {
				return &models.RenderInstruction{
					Text:        fmt.Sprintf("Not enough tokens: another regeneration costs %d.", charged),
					NextActions: []string{models.ActionPublish, models.ActionCancel},
				}, nil
			}
			return nil, err
		}
	}

	generated, err := c.generator.Generate(ctx, unit, checkpoint.PipelineKind)
	if err != nil {
		log.Printf("[PIPELINE] Regeneration failed for artifact %s: %v", artifact.ID, err)
		if charged > 0 {
			c.refundBestEffort(ctx, account, charged, fmt.Sprintf("refund: regeneration failed for artifact %s", artifact.ID))
		}
		return &models.RenderInstruction{
			Text:        "Regeneration failed; your draft is unchanged.",
			NextActions: []string{models.ActionPublish, models.ActionRegenerate, models.ActionCancel},
		}, nil
	}

	if err := c.content.ReplaceArtifactBody(ctx, artifact.ID, generated.Body, charged); err != nil {
		if charged > 0 {
			c.refundBestEffort(ctx, account, charged, fmt.Sprintf("refund: draft replace failed for artifact %s", artifact.ID))
		}
		return nil, err
	}

	remaining := c.config.FreeRegenerations - artifact.RegenerationCount - 1
	text := fmt.Sprintf("New draft (%d words):\n\n%s", generated.WordCount, generated.Body)
	if remaining > 0 {
		text += fmt.Sprintf("\n\n%d free regenerations left.", remaining)
	} else {
		text += fmt.Sprintf("\n\nFurther regenerations cost %d tokens.", c.config.RegenerationCost)
	}
	return &models.RenderInstruction{
		Text:        text,
		NextActions: []string{models.ActionPublish, models.ActionRegenerate, models.ActionCancel},
	}, nil
}

// publish runs under the (user, target) publish lock: concurrent attempts
// collapse to a benign "in progress" response, so exactly one reaches the
// adapter. Publish failure keeps the paid draft and charges intact.
func (c *PipelineCoordinator) publish(ctx context.Context, checkpoint *models.PipelineCheckpoint) (*models.RenderInstruction, error) {
	if checkpoint.CurrentStep == models.StepPublishing {
		return neutralRender("Publishing is already in progress."), nil
	}
	if checkpoint.CurrentStep != models.StepReview || checkpoint.ArtifactID == "" {
		return neutralRender("There is no draft to publish."), nil
	}

	lockAction := "publish:" + checkpoint.TargetID
	acquired, err := c.guard.Acquire(ctx, checkpoint.UserID, lockAction, c.config.PublishLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return neutralRender("Publishing is already in progress."), nil
	}
	defer c.guard.Release(ctx, checkpoint.UserID, lockAction)

	artifact, err := c.content.GetArtifact(ctx, checkpoint.ArtifactID)
	if err != nil {
		return nil, err
	}
	target, err := c.content.GetPublishTarget(ctx, checkpoint.TargetID)
	if err != nil {
		return nil, err
	}

	checkpoint.CurrentStep = models.StepPublishing
	if err := c.checkpoints.Put(ctx, checkpoint); err != nil {
		return nil, err
	}

	remoteURL, err := c.publisher.Publish(ctx, target, artifact)
	if err != nil {
		log.Printf("[PIPELINE] Publish failed for artifact %s to target %s: %v", artifact.ID, target.ID, err)
		c.audit.LogPublish(checkpoint.UserID, artifact.ID, target.ID, "FAILED")

		checkpoint.CurrentStep = models.StepReview
		if err := c.checkpoints.Put(ctx, checkpoint); err != nil {
			return nil, err
		}
		return &models.RenderInstruction{
			Text:        "Publishing failed. Your draft is safe; retry or cancel.",
			NextActions: []string{models.ActionPublish, models.ActionRegenerate, models.ActionCancel},
		}, nil
	}

	if err := c.content.MarkArtifactStatus(ctx, artifact.ID, models.ArtifactPublished); err != nil {
		return nil, err
	}
	if err := c.content.RecordPublication(ctx, artifact.ID, target.ID, remoteURL); err != nil {
		log.Printf("[PIPELINE] Failed to record publication for artifact %s: %v", artifact.ID, err)
	}
	if err := c.checkpoints.Delete(ctx, checkpoint.UserID); err != nil {
		return nil, err
	}
	c.audit.LogPublish(checkpoint.UserID, artifact.ID, target.ID, "SUCCESS")

	text := "Published!"
	if remoteURL != "" {
		text = fmt.Sprintf("Published: %s", remoteURL)
	}
	return &models.RenderInstruction{
		Text:        text,
		NextActions: []string{models.ActionStartArticle, models.ActionStartSocial},
	}, nil
}

// cancel terminates the pipeline, refunds everything charged for this attempt
// and expires the draft.
func (c *PipelineCoordinator) cancel(ctx context.Context, checkpoint *models.PipelineCheckpoint) (*models.RenderInstruction, error) {
	refunded := int64(0)
	if checkpoint.ArtifactID != "" {
		artifact, err := c.content.GetArtifact(ctx, checkpoint.ArtifactID)
		if err != nil {
			return nil, err
		}
		if artifact.Status == models.ArtifactDraft {
			// Expire before refunding: only the caller that wins the DRAFT
			// to EXPIRED flip may refund, so the refund happens at most once.
			expired, err := c.content.ExpireDraft(ctx, artifact.ID)
			if err != nil {
				log.Printf("[PIPELINE] Failed to expire artifact %s: %v", artifact.ID, err)
			}
			if expired && artifact.TokensCharged > 0 {
				account, err := c.ledger.GetAccount(ctx, checkpoint.UserID)
				if err != nil {
					return nil, err
				}
				c.refundBestEffort(ctx, account, artifact.TokensCharged, fmt.Sprintf("refund: cancelled artifact %s", artifact.ID))
				refunded = artifact.TokensCharged
			}
		}
	}

	if err := c.checkpoints.Delete(ctx, checkpoint.UserID); err != nil {
		return nil, err
	}

	text := "Cancelled."
	if refunded > 0 {
		text = fmt.Sprintf("Cancelled. %d tokens were returned.", refunded)
	}
	return &models.RenderInstruction{
		Text:        text,
		NextActions: []string{models.ActionStartArticle, models.ActionStartSocial},
	}, nil
}

// refundBestEffort logs a failed refund instead of blocking the user-facing
// response: that is an accounting reconciliation concern, not a pipeline one.
func (c *PipelineCoordinator) refundBestEffort(ctx context.Context, account *models.Account, amount int64, note string) {
	if _, err := c.ledger.Refund(ctx, account, amount, note); err != nil {
		log.Printf("[PIPELINE] Refund of %d to account %s failed: %v", amount, account.ID, err)
		c.audit.LogError(account.ID, "REFUND", err)
	}
}

func (c *PipelineCoordinator) checkRateLimit(ctx context.Context, userID string) error {
	key := fmt.Sprintf("pipeline:ratelimit:%s", userID)
	count, err := c.redis.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		return err
	}
	if count >= c.config.MaxGenerationPerUser {
		return ErrRateLimited
	}
	return nil
}

func (c *PipelineCoordinator) incrementRateLimit(ctx context.Context, userID string) {
	key := fmt.Sprintf("pipeline:ratelimit:%s", userID)
	pipe := c.redis.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, c.config.RateLimitWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[PIPELINE] Rate limit increment failed for user %s: %v", userID, err)
	}
}

func neutralRender(text string) *models.RenderInstruction {
	return &models.RenderInstruction{
		Text:        text,
		NextActions: []string{models.ActionStartArticle, models.ActionStartSocial},
	}
}

func flowName(kind models.PipelineKind) string {
	if kind == models.PipelineArticle {
		return "article"
	}
	return "social post"
}
