package services

import (
	"context"

	"github.com/contentforge/backend/internal/config"
	"github.com/contentforge/backend/internal/models"
)

// readinessCheck is one precondition in the fixed per-kind list. Blocking or
// advisory is decided at definition time, not computed.
type readinessCheck struct {
	item  models.ReadinessItem
	unmet func(unit *models.ContentUnit) bool
}

var articleChecks = []readinessCheck{
	{
		item:  models.ReadinessItem{Code: "keywords", Label: "Add at least one keyword", Blocking: true},
		unmet: func(u *models.ContentUnit) bool { return len(u.Keywords) == 0 },
	},
	{
		item:  models.ReadinessItem{Code: "description", Label: "Add a description", Blocking: true},
		unmet: func(u *models.ContentUnit) bool { return u.Description == "" },
	},
	{
		item: models.ReadinessItem{Code: "priced_item_or_images", Label: "Add a priced item or an image preference", Blocking: true},
		unmet: func(u *models.ContentUnit) bool {
			return !u.HasPricedItem && u.ImagePreference == ""
		},
	},
	{
		item:  models.ReadinessItem{Code: "title", Label: "Set a title", Blocking: false},
		unmet: func(u *models.ContentUnit) bool { return u.Title == "" },
	},
}

var socialChecks = []readinessCheck{
	{
		item:  models.ReadinessItem{Code: "keywords", Label: "Add at least one keyword", Blocking: true},
		unmet: func(u *models.ContentUnit) bool { return len(u.Keywords) == 0 },
	},
	{
		item:  models.ReadinessItem{Code: "description", Label: "Add a description", Blocking: true},
		unmet: func(u *models.ContentUnit) bool { return u.Description == "" },
	},
	{
		item:  models.ReadinessItem{Code: "image_preference", Label: "Pick an image preference", Blocking: false},
		unmet: func(u *models.ContentUnit) bool { return u.ImagePreference == "" },
	},
}

// ReadinessService computes which preconditions are unmet for a content unit
// and estimates generation cost. Cost math is pure (configured rates times the
// unit's configured size); the content lookup is the only I/O, which keeps the
// evaluator safe to call on every screen render.
type ReadinessService struct {
	content *ContentService
	ledger  *TokenLedgerService
	config  *config.PipelineConfig
}

func NewReadinessService(content *ContentService, ledger *TokenLedgerService, cfg *config.PipelineConfig) *ReadinessService {
	return &ReadinessService{content: content, ledger: ledger, config: cfg}
}

// Evaluate builds a fresh report for the unit. Never cached beyond one request.
func (s *ReadinessService) Evaluate(ctx context.Context, unitID, userID string) (*models.ReadinessReport, error) {
	unit, err := s.content.GetContentUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}

	account, err := s.ledger.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &models.ReadinessReport{
		BlockingItems:  []models.ReadinessItem{},
		AdvisoryItems:  []models.ReadinessItem{},
		EstimatedCost:  s.EstimateCost(unit),
		CurrentBalance: account.Balance,
	}

	for _, check := range checksFor(unit.Kind) {
		if !check.unmet(unit) {
			continue
		}
		if check.item.Blocking {
			report.BlockingItems = append(report.BlockingItems, check.item)
		} else {
			report.AdvisoryItems = append(report.AdvisoryItems, check.item)
		}
	}

	return report, nil
}

// EstimateCost is a pure function of configured rates and the unit's size.
func (s *ReadinessService) EstimateCost(unit *models.ContentUnit) int64 {
	return int64(unit.WordCount)*s.config.TokensPerWord + int64(unit.ImageCount)*s.config.TokensPerImage
}

func checksFor(kind models.PipelineKind) []readinessCheck {
	if kind == models.PipelineArticle {
		return articleChecks
	}
	return socialChecks
}

// ResolvableItem reports whether code names a readiness item that has a
// resolve sub-flow for the given kind.
func ResolvableItem(kind models.PipelineKind, code string) bool {
	for _, check := range checksFor(kind) {
		if check.item.Code == code {
			return true
		}
	}
	return false
}
