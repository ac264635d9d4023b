package services

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Reconciler sweeps drafts whose pipeline checkpoint has expired: it refunds
// whatever they were charged and marks them expired. This is the cleanup for
// attempts abandoned past the checkpoint TTL, including a crash between a
// charge and its publish confirmation.
type Reconciler struct {
	ledger      *TokenLedgerService
	content     *ContentService
	checkpoints *CheckpointStore
	maxDraftAge time.Duration
}

func NewReconciler(ledger *TokenLedgerService, content *ContentService, checkpoints *CheckpointStore, maxDraftAge time.Duration) *Reconciler {
	return &Reconciler{
		ledger:      ledger,
		content:     content,
		checkpoints: checkpoints,
		maxDraftAge: maxDraftAge,
	}
}

// Run sweeps periodically until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				log.Printf("[RECONCILER] Sweep failed: %v", err)
			}
		}
	}
}

// Sweep expires every abandoned draft and refunds whatever it was charged.
// Drafts whose owner still has a live checkpoint referencing them are skipped.
func (r *Reconciler) Sweep(ctx context.Context) error {
	drafts, err := r.content.ListAbandonedDrafts(ctx, r.maxDraftAge)
	if err != nil {
		return err
	}

	for _, draft := range drafts {
		if checkpoint, err := r.checkpoints.Get(ctx, draft.OwnerUserID); err == nil && checkpoint.ArtifactID == draft.ID {
			continue
		} else if err != nil && err != ErrNoCheckpoint {
			return err
		}

		// Expire before refunding. The conditional flip makes the sweep
		// idempotent: a draft that fails mid-way is retried next sweep, and a
		// draft expired elsewhere is never refunded a second time.
		expired, err := r.content.ExpireDraft(ctx, draft.ID)
		if err != nil {
			log.Printf("[RECONCILER] Failed to expire artifact %s: %v", draft.ID, err)
			continue
		}
		if !expired {
			continue
		}

		if draft.TokensCharged > 0 {
			account, err := r.ledger.GetAccount(ctx, draft.OwnerUserID)
			if err != nil {
				log.Printf("[RECONCILER] Account lookup failed for user %s, artifact %s needs manual review: %v", draft.OwnerUserID, draft.ID, err)
				continue
			}
			note := fmt.Sprintf("refund: abandoned artifact %s", draft.ID)
			if _, err := r.ledger.Refund(ctx, account, draft.TokensCharged, note); err != nil {
				log.Printf("[RECONCILER] Refund failed for artifact %s, needs manual review: %v", draft.ID, err)
				continue
			}
		}
		log.Printf("[RECONCILER] Expired abandoned artifact %s, refunded %d tokens", draft.ID, draft.TokensCharged)
	}
	return nil
}
