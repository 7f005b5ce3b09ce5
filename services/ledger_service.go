package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tournament-settlement/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultTransactionsLimit = 20
	maxTransactionsLimit     = 100
)

// Ledger is the only component allowed to mutate wallet balances.
type Ledger interface {
	ApplyTransaction(ctx context.Context, req TransactionRequest) (*models.WalletTransaction, int64, error)
	GetBalance(ctx context.Context, userID string) (*models.Wallet, error)
	ListTransactions(ctx context.Context, userID string, page, limit int) (*TransactionPage, error)
	Reconcile(ctx context.Context, userID string) (*ReconcileResult, error)
}

type TransactionRequest struct {
	UserID      string                 `json:"user_id"`
	Type        models.TransactionType `json:"type"`
	Amount      int64                  `json:"amount"`
	Description string                 `json:"description"`
	RefID       *string                `json:"ref_id,omitempty"`
}

func (r TransactionRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrMissingUserID
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTransactionType, r.Type)
	}
	if r.Amount <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(r.Description) == "" {
		return ErrMissingDescription
	}
	return nil
}

type TransactionPage struct {
	Items      []models.WalletTransaction `json:"data"`
	Page       int                        `json:"page"`
	Limit      int                        `json:"limit"`
	Total      int64                      `json:"total"`
	TotalPages int                        `json:"total_pages"`
}

type ReconcileResult struct {
	UserID          string `json:"user_id"`
	Balance         int64  `json:"balance"`
	TransactionsSum int64  `json:"transactions_sum"`
	Drift           int64  `json:"drift"`
}

func (r ReconcileResult) Consistent() bool {
	return r.Drift == 0
}

type LedgerService struct {
	DB      *gorm.DB
	Logger  *zap.Logger
	Metrics *Metrics
	Now     func() time.Time
}

func NewLedgerService(db *gorm.DB, logger *zap.Logger, metrics *Metrics) *LedgerService {
	return &LedgerService{
		DB:      db,
		Logger:  logger,
		Metrics: metrics,
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

// ApplyTransaction appends a transaction and moves the wallet balance in one database
// transaction, holding the wallet row lock only for the read-modify-write.
func (s *LedgerService) ApplyTransaction(ctx context.Context, req TransactionRequest) (*models.WalletTransaction, int64, error) {
	if err := req.Validate(); err != nil {
		return nil, 0, err
	}

	now := s.Now()
	row := &models.WalletTransaction{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Type:        req.Type,
		Amount:      req.Amount,
		Description: req.Description,
		RefID:       req.RefID,
		CreatedAt:   now,
	}

	var newBalance int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := lockWallet(tx, req.UserID, now)
		if err != nil {
			return err
		}

		if req.Type.SettlesOnce() && req.RefID != nil {
			var count int64
			if err := tx.Model(&models.WalletTransaction{}).
				Where("user_id = ? AND ref_id = ? AND type = ?", req.UserID, *req.RefID, req.Type).
				Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check existing settlement: %w", err)
			}
			if count > 0 {
				return ErrDuplicateSettlement
			}
		}

		newBalance = wallet.Balance + req.Type.Signed(req.Amount)
		if req.Type.Debits() && newBalance < 0 {
			return fmt.Errorf("%w: need %d, have %d", ErrInsufficientBalance, req.Amount, wallet.Balance)
		}

		if err := tx.Create(row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateSettlement
			}
			return fmt.Errorf("failed to insert transaction: %w", err)
		}

		if err := tx.Model(&models.Wallet{}).
			Where("user_id = ?", req.UserID).
			Updates(map[string]interface{}{
				"balance":      newBalance,
				"last_updated": now,
			}).Error; err != nil {
			return fmt.Errorf("failed to update wallet balance: %w", err)
		}
		return nil
	})
	if err != nil {
		s.Metrics.LedgerWrite(string(req.Type), ledgerResult(err))
		return nil, 0, err
	}

	s.Metrics.LedgerWrite(string(req.Type), "ok")
	s.Logger.Debug("[Ledger] transaction applied",
		zap.String("transaction_id", row.ID),
		zap.String("user_id", row.UserID),
		zap.String("type", string(row.Type)),
		zap.Int64("amount", row.Amount),
		zap.Int64("new_balance", newBalance),
	)
	return row, newBalance, nil
}

// lockWallet creates the wallet at 0 when absent and returns it under FOR UPDATE.
func lockWallet(tx *gorm.DB, userID string, now time.Time) (*models.Wallet, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Wallet{UserID: userID, LastUpdated: now}).Error; err != nil {
		return nil, fmt.Errorf("failed to initialise wallet: %w", err)
	}

	var wallet models.Wallet
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error; err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &wallet, nil
}

func ledgerResult(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateSettlement):
		return "duplicate"
	case errors.Is(err, ErrInsufficientBalance):
		return "rejected"
	}
	return "error"
}

func (s *LedgerService) GetBalance(ctx context.Context, userID string) (*models.Wallet, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUserID
	}

	db := s.DB.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Wallet{UserID: userID, LastUpdated: s.Now()}).Error; err != nil {
		return nil, fmt.Errorf("failed to initialise wallet: %w", err)
	}

	var wallet models.Wallet
	if err := db.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch wallet: %w", err)
	}
	return &wallet, nil
}

// ListTransactions pages a user's history newest first and attaches tournament names via ref_id.
func (s *LedgerService) ListTransactions(ctx context.Context, userID string, page, limit int) (*TransactionPage, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUserID
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultTransactionsLimit
	}
	if limit > maxTransactionsLimit {
		limit = maxTransactionsLimit
	}

	db := s.DB.WithContext(ctx)

	var total int64
	if err := db.Model(&models.WalletTransaction{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	var items []models.WalletTransaction
	if err := db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	if err := s.attachTournamentNames(db, items); err != nil {
		// History is still useful without names.
		s.Logger.Warn("[Ledger] tournament name enrichment failed", zap.String("user_id", userID), zap.Error(err))
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &TransactionPage{
		Items:      items,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

func (s *LedgerService) attachTournamentNames(db *gorm.DB, items []models.WalletTransaction) error {
	seen := map[string]struct{}{}
	var refIDs []string
	for _, it := range items {
		if it.RefID == nil || *it.RefID == "" {
			continue
		}
		if _, ok := seen[*it.RefID]; ok {
			continue
		}
		seen[*it.RefID] = struct{}{}
		refIDs = append(refIDs, *it.RefID)
	}
	if len(refIDs) == 0 {
		return nil
	}

	var tournaments []struct {
		ID   string
		Name string
	}
	if err := db.Model(&models.Tournament{}).Select("id, name").Where("id IN ?", refIDs).Scan(&tournaments).Error; err != nil {
		return err
	}

	names := make(map[string]string, len(tournaments))
	for _, t := range tournaments {
		names[t.ID] = t.Name
	}
	for i := range items {
		if items[i].RefID == nil {
			continue
		}
		if name, ok := names[*items[i].RefID]; ok {
			items[i].TournamentName = &name
		}
	}
	return nil
}

// Reconcile recomputes the signed sum of a user's transactions and compares it with the cached balance.
func (s *LedgerService) Reconcile(ctx context.Context, userID string) (*ReconcileResult, error) {
	wallet, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	var sum int64
	if err := s.DB.WithContext(ctx).Model(&models.WalletTransaction{}).
		Select("COALESCE(SUM(CASE WHEN type IN ? THEN -amount ELSE amount END), 0)",
			[]models.TransactionType{models.TransactionTypeDebit, models.TransactionTypeTournamentEntry}).
		Where("user_id = ?", userID).
		Scan(&sum).Error; err != nil {
		return nil, fmt.Errorf("failed to sum transactions: %w", err)
	}

	res := &ReconcileResult{
		UserID:          userID,
		Balance:         wallet.Balance,
		TransactionsSum: sum,
		Drift:           wallet.Balance - sum,
	}
	if !res.Consistent() {
		s.Logger.Error("[Ledger] balance drift detected",
			zap.String("user_id", userID),
			zap.Int64("balance", res.Balance),
			zap.Int64("transactions_sum", res.TransactionsSum),
		)
	}
	return res, nil
}

// Migrate creates the settlement tables and the partial unique index that makes each
// prize/refund land at most once per (user_id, ref_id, type).
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Tournament{},
		&models.Participant{},
		&models.PlayerIdentity{},
		&models.Wallet{},
		&models.WalletTransaction{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_wallet_tx_settle_once
		ON wallet_transactions (user_id, ref_id, type)
		WHERE type IN ('tournament_prize', 'tournament_refund', 'refund') AND ref_id IS NOT NULL`).Error; err != nil {
		return fmt.Errorf("failed to create settlement uniqueness index: %w", err)
	}
	return nil
}
