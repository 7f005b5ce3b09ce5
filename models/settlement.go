package models

import "time"

type SettlementOutcome string

const (
	SettlementOutcomeValid   SettlementOutcome = "valid"
	SettlementOutcomeInvalid SettlementOutcome = "invalid"
	SettlementOutcomeFailed  SettlementOutcome = "failed"
)

// PrizeAward is one credited leaderboard position.
type PrizeAward struct {
	Position           int     `json:"position"`
	PlayerName         string  `json:"player_name"`
	UserID             string  `json:"user_id"`
	Kills              int     `json:"kills"`
	AverageCombatScore float64 `json:"average_combat_score"`
	PrizeAmount        int64   `json:"prize_amount"`
	NewBalance         int64   `json:"new_balance"`
	TransactionID      string  `json:"transaction_id,omitempty"`
	AlreadyApplied     bool    `json:"already_applied,omitempty"`
}

// RefundRecord is one returned joining fee.
type RefundRecord struct {
	UserID         string `json:"user_id"`
	PlayerName     string `json:"player_name"`
	RefundAmount   int64  `json:"refund_amount"`
	NewBalance     int64  `json:"new_balance"`
	TransactionID  string `json:"transaction_id,omitempty"`
	AlreadyApplied bool   `json:"already_applied,omitempty"`
}

// SettlementReport summarises what a settlement run did for one tournament.
type SettlementReport struct {
	TournamentID   string            `json:"tournament_id"`
	TournamentName string            `json:"tournament_name"`
	Outcome        SettlementOutcome `json:"outcome"`
	MatchID        string            `json:"match_id,omitempty"`
	Message        string            `json:"message,omitempty"`
	PrizePool      int64             `json:"prize_pool"`
	JoiningFee     int64             `json:"joining_fee"`
	Winners        []PrizeAward      `json:"winners,omitempty"`
	Refunds        []RefundRecord    `json:"refunds,omitempty"`
	TotalAllocated int64             `json:"total_allocated"`
	TotalRefunded  int64             `json:"total_refunded"`
	FailedWrites   int               `json:"failed_writes"`
	Error          string            `json:"error,omitempty"`
	SettledAt      time.Time         `json:"settled_at"`
}
