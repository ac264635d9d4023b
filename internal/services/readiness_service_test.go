package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/contentforge/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func newTestReadinessService(t *testing.T) (*ReadinessService, sqlmock.Sqlmock) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := testPipelineConfig()
	ledger := NewTokenLedgerService(db)
	content := NewContentService(db)
	return NewReadinessService(content, ledger, cfg), dbMock
}

func TestReadinessService_Evaluate(t *testing.T) {
	t.Run("ready article", func(t *testing.T) {
		service, dbMock := newTestReadinessService(t)

		dbMock.ExpectQuery("SELECT id, owner_user_id, kind").
			WithArgs("unit1").
			WillReturnRows(readyUnitRow())
		dbMock.ExpectQuery("SELECT id, user_id, balance").
			WithArgs("user1").
			WillReturnRows(accountRow(500))

		report, err := service.Evaluate(context.Background(), "unit1", "user1")
		assert.NoError(t, err)
		assert.True(t, report.Ready())
		assert.Empty(t, report.BlockingItems)
		assert.Equal(t, int64(140), report.EstimatedCost)
		assert.Equal(t, int64(500), report.CurrentBalance)
	})

	t.Run("bare article blocks on everything", func(t *testing.T) {
		service, dbMock := newTestReadinessService(t)

		dbMock.ExpectQuery("SELECT id, owner_user_id, kind").
			WithArgs("unit2").
			WillReturnRows(sqlmock.NewRows(contentUnitColumns()).
				AddRow("unit2", "user1", "ARTICLE", "", "", "{}", 100, 0, false, "", time.Now()))
		dbMock.ExpectQuery("SELECT id, user_id, balance").
			WithArgs("user1").
			WillReturnRows(accountRow(500))

		report, err := service.Evaluate(context.Background(), "unit2", "user1")
		assert.NoError(t, err)
		assert.False(t, report.Ready())
		assert.Len(t, report.BlockingItems, 3)
		// missing title is advisory only
		assert.Len(t, report.AdvisoryItems, 1)
		assert.Equal(t, "title", report.AdvisoryItems[0].Code)
	})

	t.Run("social post has its own check list", func(t *testing.T) {
		service, dbMock := newTestReadinessService(t)

		dbMock.ExpectQuery("SELECT id, owner_user_id, kind").
			WithArgs("unit3").
			WillReturnRows(sqlmock.NewRows(contentUnitColumns()).
				AddRow("unit3", "user1", "SOCIAL", "", "a post", "{sale}", 50, 1, false, "", time.Now()))
		dbMock.ExpectQuery("SELECT id, user_id, balance").
			WithArgs("user1").
			WillReturnRows(accountRow(500))

		report, err := service.Evaluate(context.Background(), "unit3", "user1")
		assert.NoError(t, err)
		// image preference missing is advisory for social, so still ready
		assert.True(t, report.Ready())
		assert.Len(t, report.AdvisoryItems, 1)
		assert.Equal(t, "image_preference", report.AdvisoryItems[0].Code)
	})

	t.Run("unknown unit", func(t *testing.T) {
		service, dbMock := newTestReadinessService(t)

		dbMock.ExpectQuery("SELECT id, owner_user_id, kind").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		_, err := service.Evaluate(context.Background(), "ghost", "user1")
		assert.ErrorIs(t, err, ErrContentUnitNotFound)
	})
}

func TestReadinessService_EstimateCost(t *testing.T) {
	service, _ := newTestReadinessService(t)

	t.Run("words plus images", func(t *testing.T) {
		cost := service.EstimateCost(&models.ContentUnit{WordCount: 800, ImageCount: 3})
		assert.Equal(t, int64(860), cost)
	})

	t.Run("text only", func(t *testing.T) {
		cost := service.EstimateCost(&models.ContentUnit{WordCount: 50})
		assert.Equal(t, int64(50), cost)
	})
}

func TestResolvableItem(t *testing.T) {
	assert.True(t, ResolvableItem(models.PipelineArticle, "keywords"))
	assert.True(t, ResolvableItem(models.PipelineArticle, "priced_item_or_images"))
	assert.True(t, ResolvableItem(models.PipelineSocial, "image_preference"))
	assert.False(t, ResolvableItem(models.PipelineSocial, "priced_item_or_images"))
	assert.False(t, ResolvableItem(models.PipelineArticle, "nonsense"))
}
