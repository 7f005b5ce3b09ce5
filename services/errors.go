package services

import (
	"errors"
	"fmt"
)

var (
	// Verification service could not be reached, timed out, or answered non-2xx.
	ErrVerificationUnavailable = errors.New("verification service unavailable")

	// Ledger
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrDuplicateSettlement    = errors.New("settlement transaction already recorded")
	ErrInvalidAmount          = errors.New("amount must be a positive integer")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrMissingUserID          = errors.New("user_id is required")
	ErrMissingDescription     = errors.New("description is required")

	// Settlement
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrSettlementLocked   = errors.New("tournament settlement is claimed by another worker")
	ErrSettlementNotDue   = errors.New("tournament match result is not due yet")
)

// VerificationUnavailableError keeps the upstream status for logs while matching
// ErrVerificationUnavailable under errors.Is.
type VerificationUnavailableError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *VerificationUnavailableError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("verification %s: %v", e.Endpoint, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("verification %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("verification %s unavailable", e.Endpoint)
}

func (e *VerificationUnavailableError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrVerificationUnavailable, e.Err}
	}
	return []error{ErrVerificationUnavailable}
}
