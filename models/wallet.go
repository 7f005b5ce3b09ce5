package models

import (
	"time"
)

type TransactionType string

const (
	TransactionTypeCredit           TransactionType = "credit"
	TransactionTypeDebit            TransactionType = "debit"
	TransactionTypeTournamentEntry  TransactionType = "tournament_entry"
	TransactionTypeTournamentPrize  TransactionType = "tournament_prize"
	TransactionTypeRefund           TransactionType = "refund"
	TransactionTypeTournamentRefund TransactionType = "tournament_refund"
)

// Valid reports whether t is one of the known ledger transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeCredit, TransactionTypeDebit, TransactionTypeTournamentEntry,
		TransactionTypeTournamentPrize, TransactionTypeRefund, TransactionTypeTournamentRefund:
		return true
	}
	return false
}

// Debits reports whether the type removes funds from a wallet.
func (t TransactionType) Debits() bool {
	return t == TransactionTypeDebit || t == TransactionTypeTournamentEntry
}

// SettlesOnce reports whether at most one row may exist per (user_id, ref_id, type).
func (t TransactionType) SettlesOnce() bool {
	return t == TransactionTypeTournamentPrize || t == TransactionTypeTournamentRefund || t == TransactionTypeRefund
}

// Signed returns amount with the sign the type applies to a balance.
func (t TransactionType) Signed(amount int64) int64 {
	if t.Debits() {
		return -amount
	}
	return amount
}

// Wallet is a cached projection of the user's transactions.
type Wallet struct {
	UserID      string    `json:"user_id" gorm:"primaryKey;type:uuid"`
	Balance     int64     `json:"balance" gorm:"not null;default:0;check:balance >= 0"`
	LastUpdated time.Time `json:"last_updated" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (Wallet) TableName() string {
	return "user_wallets"
}

// WalletTransaction is append-only and the source of truth for balances.
type WalletTransaction struct {
	ID          string          `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      string          `json:"user_id" gorm:"type:uuid;not null;index"`
	Type        TransactionType `json:"type" gorm:"type:varchar(32);not null"`
	Amount      int64           `json:"amount" gorm:"not null;check:amount > 0"`
	Description string          `json:"description" gorm:"not null"`
	RefID       *string         `json:"ref_id,omitempty" gorm:"type:uuid;index"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null;index"`

	TournamentName *string `json:"tournament_name,omitempty" gorm:"-"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
