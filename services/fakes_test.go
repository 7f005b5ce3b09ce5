package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tournament-settlement/models"

	"github.com/google/uuid"
)

// memoryStore is an in-memory TournamentStore.
type memoryStore struct {
	mu           sync.Mutex
	tournaments  map[string]*models.Tournament
	participants map[string][]ParticipantIdentity

	saveErr error
	markErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		tournaments:  map[string]*models.Tournament{},
		participants: map[string][]ParticipantIdentity{},
	}
}

func (s *memoryStore) add(t models.Tournament, participants ...ParticipantIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tournaments[t.ID] = &t
	s.participants[t.ID] = participants
}

func (s *memoryStore) get(id string) models.Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tournaments[id]
}

func (s *memoryStore) sorted(keep func(*models.Tournament) bool) []models.Tournament {
	var out []models.Tournament
	for _, t := range s.tournaments {
		if keep(t) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memoryStore) DueForFinalization(_ context.Context, from, to time.Time) ([]models.Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(t *models.Tournament) bool {
		return !t.FinalPoolCalculated && !t.MatchStartTime.Before(from) && !t.MatchStartTime.After(to)
	}), nil
}

func (s *memoryStore) CountParticipants(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.participants[id])), nil
}

func (s *memoryStore) SaveFinalPrizePool(_ context.Context, id string, pool int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return false, s.saveErr
	}
	t := s.tournaments[id]
	if t.FinalPoolCalculated {
		return false, nil
	}
	t.PrizePool = pool
	t.FinalPoolCalculated = true
	return true, nil
}

func (s *memoryStore) DueForSettlement(_ context.Context, now time.Time) ([]models.Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(t *models.Tournament) bool {
		return !t.Processed && t.MatchResultTime.Before(now)
	}), nil
}

func (s *memoryStore) GetTournament(_ context.Context, id string) (*models.Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[id]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memoryStore) ListParticipants(_ context.Context, id string) ([]ParticipantIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participants[id], nil
}

func (s *memoryStore) MarkProcessed(_ context.Context, id string, status models.TournamentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return false, s.markErr
	}
	t := s.tournaments[id]
	if t.Processed {
		return false, nil
	}
	t.Processed = true
	t.Status = status
	return true, nil
}

// memoryLedger enforces the same settle-once rule as the database index.
type memoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	txs      []models.WalletTransaction

	// failFn, when set, can fail a write before it is applied.
	failFn func(req TransactionRequest) error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{balances: map[string]int64{}}
}

func (l *memoryLedger) ApplyTransaction(_ context.Context, req TransactionRequest) (*models.WalletTransaction, int64, error) {
	if err := req.Validate(); err != nil {
		return nil, 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failFn != nil {
		if err := l.failFn(req); err != nil {
			return nil, 0, err
		}
	}
	if req.Type.SettlesOnce() && req.RefID != nil {
		for _, tx := range l.txs {
			if tx.UserID == req.UserID && tx.Type == req.Type && tx.RefID != nil && *tx.RefID == *req.RefID {
				return nil, 0, ErrDuplicateSettlement
			}
		}
	}
	next := l.balances[req.UserID] + req.Type.Signed(req.Amount)
	if req.Type.Debits() && next < 0 {
		return nil, 0, ErrInsufficientBalance
	}
	tx := models.WalletTransaction{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Type:        req.Type,
		Amount:      req.Amount,
		Description: req.Description,
		RefID:       req.RefID,
		CreatedAt:   time.Now(),
	}
	l.txs = append(l.txs, tx)
	l.balances[req.UserID] = next
	return &tx, next, nil
}

func (l *memoryLedger) GetBalance(_ context.Context, userID string) (*models.Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &models.Wallet{UserID: userID, Balance: l.balances[userID]}, nil
}

func (l *memoryLedger) ListTransactions(_ context.Context, userID string, page, limit int) (*TransactionPage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var items []models.WalletTransaction
	for _, tx := range l.txs {
		if tx.UserID == userID {
			items = append(items, tx)
		}
	}
	return &TransactionPage{Items: items, Page: page, Limit: limit, Total: int64(len(items)), TotalPages: 1}, nil
}

func (l *memoryLedger) Reconcile(_ context.Context, userID string) (*ReconcileResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for _, tx := range l.txs {
		if tx.UserID == userID {
			sum += tx.Type.Signed(tx.Amount)
		}
	}
	return &ReconcileResult{UserID: userID, Balance: l.balances[userID], TransactionsSum: sum, Drift: l.balances[userID] - sum}, nil
}

func (l *memoryLedger) byType(txType models.TransactionType) []models.WalletTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.WalletTransaction
	for _, tx := range l.txs {
		if tx.Type == txType {
			out = append(out, tx)
		}
	}
	return out
}

func (l *memoryLedger) balance(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

type mockVerifier struct {
	validateFunc    func(ctx context.Context, q MatchQuery) (*ValidationResult, error)
	leaderboardFunc func(ctx context.Context, q MatchQuery) (*LeaderboardResult, error)

	mu               sync.Mutex
	validateCalls    int
	leaderboardCalls int
}

func (m *mockVerifier) Validate(ctx context.Context, q MatchQuery) (*ValidationResult, error) {
	m.mu.Lock()
	m.validateCalls++
	m.mu.Unlock()
	if m.validateFunc != nil {
		return m.validateFunc(ctx, q)
	}
	return &ValidationResult{Passed: true, MatchID: "match-1"}, nil
}

func (m *mockVerifier) Leaderboard(ctx context.Context, q MatchQuery) (*LeaderboardResult, error) {
	m.mu.Lock()
	m.leaderboardCalls++
	m.mu.Unlock()
	if m.leaderboardFunc != nil {
		return m.leaderboardFunc(ctx, q)
	}
	return &LeaderboardResult{}, nil
}

type mockLock struct {
	acquireFunc func(ctx context.Context, id string) (func(context.Context) error, error)
	released    []string
}

func (m *mockLock) Acquire(ctx context.Context, id string) (func(context.Context) error, error) {
	if m.acquireFunc != nil {
		return m.acquireFunc(ctx, id)
	}
	return func(context.Context) error {
		m.released = append(m.released, id)
		return nil
	}, nil
}

type mockArchiver struct {
	reports []*models.SettlementReport
	err     error
}

func (m *mockArchiver) Archive(_ context.Context, report *models.SettlementReport) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.reports = append(m.reports, report)
	return fmt.Sprintf("https://cdn.example.com/settlements/%s.json", report.TournamentID), nil
}

func participant(userID, name, tag string) ParticipantIdentity {
	return ParticipantIdentity{
		PlayerID: userID,
		Identity: &models.PlayerIdentity{UserID: userID, Name: name, Tag: tag, Platform: "pc", Region: "eu"},
	}
}

func entry(name, tag string, kills int) LeaderboardEntry {
	return LeaderboardEntry{
		PlayerInfo: PlayerInfo{Name: name, Tag: tag, Platform: "pc", Region: "eu"},
		Kills:      kills,
	}
}
