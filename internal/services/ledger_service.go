package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/contentforge/backend/internal/audit"
	"github.com/contentforge/backend/internal/models"
	"github.com/google/uuid"
)

// TokenLedgerService owns accounts and ledger entries exclusively. Balance is
// mutated only through conditional UPDATEs executed here; callers never
// read-then-write a balance.
type TokenLedgerService struct {
	db    *sql.DB
	audit *audit.Logger
}

func NewTokenLedgerService(db *sql.DB) *TokenLedgerService {
	return &TokenLedgerService{
		db:    db,
		audit: audit.NewLogger(),
	}
}

// GetAccount fetches the account for a user, creating it with a zero balance
// on first sight.
func (s *TokenLedgerService) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	account, err := s.fetchAccount(ctx, userID)
	if err == nil {
		return account, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}

	id := uuid.NewString()
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, balance, is_privileged, created_at, updated_at)
		VALUES ($1, $2, 0, false, $3, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, id, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		// Lost the creation race; the winner's row is the canonical account.
		account, err = s.fetchAccount(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch account: %w", err)
		}
		return account, nil
	}
	return &models.Account{ID: id, UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *TokenLedgerService) fetchAccount(ctx context.Context, userID string) (*models.Account, error) {
	account := &models.Account{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, balance, is_privileged, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
	`, userID).Scan(&account.ID, &account.UserID, &account.Balance, &account.IsPrivileged, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// CheckBalance reports whether the account could afford amount right now.
// It is not a reservation; the balance can change before a charge lands.
func (s *TokenLedgerService) CheckBalance(ctx context.Context, account *models.Account, amount int64) (bool, error) {
	if account.IsPrivileged {
		return true, nil
	}
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = $1`, account.ID).Scan(&balance)
	if err != nil {
		return false, fmt.Errorf("balance check failed: %w", err)
	}
	return balance >= amount, nil
}

// Charge debits amount from the account. For non-privileged accounts the debit
// is a single conditional UPDATE guarded by the balance constraint, so
// concurrent charges for the same account cannot overdraw it. Privileged
// accounts never fail; their entry has amount 0 and the real amount in the note.
func (s *TokenLedgerService) Charge(ctx context.Context, account *models.Account, amount int64, kind models.EntryKind, note string) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("charge amount must be non-negative")
	}

	if account.IsPrivileged {
		observed := fmt.Sprintf("%s (privileged, would charge %d)", note, amount)
		newBalance, err := s.apply(ctx, account.ID, 0, kind, observed)
		if err != nil {
			return 0, err
		}
		s.audit.LogCharge(account.ID, amount, string(kind), "PRIVILEGED")
		return newBalance, nil
	}

	newBalance, err := s.applyConditional(ctx, account.ID, -amount, kind, note)
	if err != nil {
		if err == ErrInsufficientBalance {
			s.audit.LogCharge(account.ID, amount, string(kind), "REJECTED")
		}
		return 0, err
	}
	s.audit.LogCharge(account.ID, amount, string(kind), "SUCCESS")
	return newBalance, nil
}

// Refund credits amount back unconditionally. Only the coordinator calls this,
// and only for a charge it made itself.
func (s *TokenLedgerService) Refund(ctx context.Context, account *models.Account, amount int64, note string) (int64, error) {
	if account.IsPrivileged {
		observed := fmt.Sprintf("%s (privileged, would refund %d)", note, amount)
		newBalance, err := s.apply(ctx, account.ID, 0, models.EntryRefund, observed)
		if err != nil {
			return 0, err
		}
		s.audit.LogCredit(account.ID, amount, string(models.EntryRefund))
		return newBalance, nil
	}
	newBalance, err := s.apply(ctx, account.ID, amount, models.EntryRefund, note)
	if err != nil {
		return 0, err
	}
	s.audit.LogCredit(account.ID, amount, string(models.EntryRefund))
	return newBalance, nil
}

// Credit adds tokens for purchases and referral bonuses.
func (s *TokenLedgerService) Credit(ctx context.Context, account *models.Account, amount int64, kind models.EntryKind, note string) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("credit amount must be non-negative")
	}
	if kind != models.EntryPurchase && kind != models.EntryBonus {
		return 0, fmt.Errorf("credit kind must be purchase or bonus, got %s", kind)
	}
	newBalance, err := s.apply(ctx, account.ID, amount, kind, note)
	if err != nil {
		return 0, err
	}
	s.audit.LogCredit(account.ID, amount, string(kind))
	return newBalance, nil
}

// ListEntries returns the most recent ledger entries for an account.
func (s *TokenLedgerService) ListEntries(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, amount, kind, note, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Amount, &entry.Kind, &entry.Note, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// applyConditional applies a debit guarded by the balance constraint and
// inserts the matching ledger entry in one DB transaction.
func (s *TokenLedgerService) applyConditional(ctx context.Context, accountID string, delta int64, kind models.EntryKind, note string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var newBalance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND balance + $1 >= 0
		RETURNING balance
	`, delta, accountID).Scan(&newBalance)

	if err == sql.ErrNoRows {
		return 0, ErrInsufficientBalance
	}
	if err != nil {
		return 0, fmt.Errorf("balance update failed: %w", err)
	}

	if err := s.insertEntry(ctx, tx, accountID, delta, kind, note); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ledger commit failed: %w", err)
	}
	return newBalance, nil
}

// apply applies an unconditional balance delta plus its ledger entry.
func (s *TokenLedgerService) apply(ctx context.Context, accountID string, delta int64, kind models.EntryKind, note string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var newBalance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance
	`, delta, accountID).Scan(&newBalance)

	if err == sql.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("balance update failed: %w", err)
	}

	if err := s.insertEntry(ctx, tx, accountID, delta, kind, note); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ledger commit failed: %w", err)
	}
	return newBalance, nil
}

func (s *TokenLedgerService) insertEntry(ctx context.Context, tx *sql.Tx, accountID string, amount int64, kind models.EntryKind, note string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, account_id, amount, kind, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), accountID, amount, string(kind), note, time.Now())
	if err != nil {
		log.Printf("[LEDGER] Failed to insert entry for account %s: %v", accountID, err)
		return fmt.Errorf("ledger entry insert failed: %w", err)
	}
	return nil
}
