package models

import (
	"time"
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	EntryGeneration   EntryKind = "GENERATION"
	EntryRegeneration EntryKind = "REGENERATION"
	EntryRefund       EntryKind = "REFUND"
	EntryPurchase     EntryKind = "PURCHASE"
	EntryBonus        EntryKind = "BONUS"
)

// Account holds a user's spendable token balance. Balance is mutated only
// through the ledger's conditional UPDATE, never read-then-written.
type Account struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Balance      int64     `json:"balance" db:"balance"` // smallest spendable token
	IsPrivileged bool      `json:"is_privileged" db:"is_privileged"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// LedgerEntry is an immutable record of a balance-affecting operation.
// Privileged charges are recorded with amount 0 and the real amount in the note.
type LedgerEntry struct {
	ID        string    `json:"id" db:"id"`
	AccountID string    `json:"account_id" db:"account_id"`
	Amount    int64     `json:"amount" db:"amount"` // signed; negative = debit
	Kind      EntryKind `json:"kind" db:"kind"`
	Note      string    `json:"note" db:"note"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
