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

func TestTokenLedgerService_GetAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTokenLedgerService(db)

	t.Run("existing account", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("SELECT id, user_id, balance, is_privileged, created_at, updated_at").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance", "is_privileged", "created_at", "updated_at"}).
				AddRow("acct1", "user1", 500, false, now, now))

		account, err := service.GetAccount(context.Background(), "user1")
		assert.NoError(t, err)
		assert.Equal(t, "acct1", account.ID)
		assert.Equal(t, int64(500), account.Balance)
		assert.False(t, account.IsPrivileged)
	})

	t.Run("creates account on first sight", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, balance, is_privileged, created_at, updated_at").
			WithArgs("newuser").
			WillReturnError(sql.ErrNoRows)

		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(sqlmock.AnyArg(), "newuser", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		account, err := service.GetAccount(context.Background(), "newuser")
		assert.NoError(t, err)
		assert.Equal(t, "newuser", account.UserID)
		assert.Equal(t, int64(0), account.Balance)
	})

	t.Run("lost creation race returns the winner's row", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, balance, is_privileged, created_at, updated_at").
			WithArgs("racer").
			WillReturnError(sql.ErrNoRows)

		// a concurrent request inserted first, so the conflict swallows ours
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(sqlmock.AnyArg(), "racer", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		now := time.Now()
		mock.ExpectQuery("SELECT id, user_id, balance, is_privileged, created_at, updated_at").
			WithArgs("racer").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance", "is_privileged", "created_at", "updated_at"}).
				AddRow("acct-winner", "racer", 0, false, now, now))

		account, err := service.GetAccount(context.Background(), "racer")
		assert.NoError(t, err)
		assert.Equal(t, "acct-winner", account.ID)
		assert.Equal(t, "racer", account.UserID)
	})
}

func TestTokenLedgerService_Charge(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTokenLedgerService(db)

	t.Run("successful charge", func(t *testing.T) {
		account := &models.Account{ID: "acct1", UserID: "user1", Balance: 500}

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(-120), "acct1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(380))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), "acct1", int64(-120), "GENERATION", "generation for unit unit1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		newBalance, err := service.Charge(context.Background(), account, 120, models.EntryGeneration, "generation for unit unit1")
		assert.NoError(t, err)
		assert.Equal(t, int64(380), newBalance)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		account := &models.Account{ID: "acct1", UserID: "user1", Balance: 50}

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(-120), "acct1").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := service.Charge(context.Background(), account, 120, models.EntryGeneration, "generation for unit unit1")
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("privileged account records zero-amount entry", func(t *testing.T) {
		account := &models.Account{ID: "acct2", UserID: "admin", Balance: 0, IsPrivileged: true}

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(0), "acct2").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(0))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), "acct2", int64(0), "GENERATION", "generation for unit unit1 (privileged, would charge 120)", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		newBalance, err := service.Charge(context.Background(), account, 120, models.EntryGeneration, "generation for unit unit1")
		assert.NoError(t, err)
		assert.Equal(t, int64(0), newBalance)
	})

	t.Run("negative amount rejected", func(t *testing.T) {
		account := &models.Account{ID: "acct1", UserID: "user1"}

		_, err := service.Charge(context.Background(), account, -10, models.EntryGeneration, "bad")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "non-negative")
	})
}

func TestTokenLedgerService_Refund(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTokenLedgerService(db)

	t.Run("refund restores balance", func(t *testing.T) {
		account := &models.Account{ID: "acct1", UserID: "user1", Balance: 380}

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(120), "acct1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(500))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), "acct1", int64(120), "REFUND", "generation failed for unit unit1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		newBalance, err := service.Refund(context.Background(), account, 120, "generation failed for unit unit1")
		assert.NoError(t, err)
		assert.Equal(t, int64(500), newBalance)
	})

	t.Run("privileged refund is zero-amount", func(t *testing.T) {
		account := &models.Account{ID: "acct2", UserID: "admin", IsPrivileged: true}

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(0), "acct2").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(0))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), "acct2", int64(0), "REFUND", "generation failed (privileged, would refund 120)", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		_, err := service.Refund(context.Background(), account, 120, "generation failed")
		assert.NoError(t, err)
	})
}

func TestTokenLedgerService_Credit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTokenLedgerService(db)

	t.Run("purchase credit", func(t *testing.T) {
		account := &models.Account{ID: "acct1", UserID: "user1", Balance: 100}

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(1000), "acct1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(1100))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), "acct1", int64(1000), "PURCHASE", "token pack", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		newBalance, err := service.Credit(context.Background(), account, 1000, models.EntryPurchase, "token pack")
		assert.NoError(t, err)
		assert.Equal(t, int64(1100), newBalance)
	})

	t.Run("rejects non-credit kinds", func(t *testing.T) {
		account := &models.Account{ID: "acct1", UserID: "user1"}

		_, err := service.Credit(context.Background(), account, 100, models.EntryGeneration, "nope")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "purchase or bonus")
	})

	t.Run("unknown account", func(t *testing.T) {
		account := &models.Account{ID: "ghost", UserID: "ghost"}

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(100), "ghost").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := service.Credit(context.Background(), account, 100, models.EntryBonus, "referral")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestTokenLedgerService_ListEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTokenLedgerService(db)

	t.Run("returns recent entries", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("SELECT id, account_id, amount, kind, note, created_at").
			WithArgs("acct1", 20).
			WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "amount", "kind", "note", "created_at"}).
				AddRow("e2", "acct1", 120, "REFUND", "generation failed", now).
				AddRow("e1", "acct1", -120, "GENERATION", "generation for unit unit1", now.Add(-time.Minute)))

		entries, err := service.ListEntries(context.Background(), "acct1", 20)
		assert.NoError(t, err)
		assert.Len(t, entries, 2)
		assert.Equal(t, int64(120), entries[0].Amount)
		assert.Equal(t, models.EntryKind("GENERATION"), entries[1].Kind)
	})

	t.Run("empty ledger", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, account_id, amount, kind, note, created_at").
			WithArgs("acct9", 20).
			WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "amount", "kind", "note", "created_at"}))

		entries, err := service.ListEntries(context.Background(), "acct9", 20)
		assert.NoError(t, err)
		assert.Empty(t, entries)
	})
}
