package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tournament-settlement/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettlementState is where a tournament sits in the settlement state machine.
type SettlementState string

const (
	StatePending        SettlementState = "PENDING"
	StateVerifying      SettlementState = "VERIFYING"
	StateSettledValid   SettlementState = "SETTLED_VALID"
	StateSettledInvalid SettlementState = "SETTLED_INVALID"
)

// DefaultMaxWriteAttempts bounds how many ticks a tournament with failing ledger writes is retried.
const DefaultMaxWriteAttempts = 5

var (
	errSettlementFailure = errors.New("settlement failure")
	errWritesIncomplete  = errors.New("settlement ledger writes incomplete")
)

type SettleSummary struct {
	Scanned int
	Valid   int
	Invalid int
	Pending int
}

// SettlementProcessor verifies finished matches and pays out or refunds through the Ledger.
type SettlementProcessor struct {
	Store    TournamentStore
	Verifier MatchVerifier
	Ledger   Ledger
	Lock     SettlementLock
	Archive  ReceiptArchiver
	Logger   *zap.Logger
	Metrics  *Metrics
	Clock    func() time.Time

	MaxWriteAttempts int

	mu            sync.Mutex
	writeAttempts map[string]int
}

func NewSettlementProcessor(store TournamentStore, verifier MatchVerifier, ledger Ledger, logger *zap.Logger, metrics *Metrics) *SettlementProcessor {
	return &SettlementProcessor{
		Store:            store,
		Verifier:         verifier,
		Ledger:           ledger,
		Logger:           logger,
		Metrics:          metrics,
		Clock:            func() time.Time { return time.Now().UTC() },
		MaxWriteAttempts: DefaultMaxWriteAttempts,
		writeAttempts:    map[string]int{},
	}
}

// Run settles every tournament whose result is due, one at a time.
func (p *SettlementProcessor) Run(ctx context.Context, now time.Time) (SettleSummary, error) {
	var summary SettleSummary

	pending, err := p.Store.DueForSettlement(ctx, now)
	if err != nil {
		p.Logger.Error("[Settlement] scan failed", zap.Error(err))
		return summary, err
	}
	summary.Scanned = len(pending)
	if len(pending) == 0 {
		p.Logger.Debug("[Settlement] no pending tournaments to process")
		return summary, nil
	}

	p.Logger.Info("[Settlement] 📋 pending tournaments to process", zap.Int("count", len(pending)))

	for _, t := range pending {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		state, _, _ := p.ProcessTournament(ctx, t.ID)
		switch state {
		case StateSettledValid:
			summary.Valid++
		case StateSettledInvalid:
			summary.Invalid++
		default:
			summary.Pending++
		}
	}
	return summary, nil
}

// ProcessTournament drives one tournament through verification and settlement. A PENDING
// result means the tournament stays unprocessed and is retried on a later tick.
func (p *SettlementProcessor) ProcessTournament(ctx context.Context, tournamentID string) (SettlementState, *models.SettlementReport, error) {
	log := p.Logger.With(zap.String("tournament_id", tournamentID))

	if p.Lock != nil {
		release, err := p.Lock.Acquire(ctx, tournamentID)
		if err != nil {
			if errors.Is(err, ErrSettlementLocked) {
				log.Info("[Settlement] claimed by another worker, skipping")
			} else {
				log.Error("[Settlement] failed to claim tournament", zap.Error(err))
			}
			return StatePending, nil, err
		}
		defer func() {
			// Release must outlive a cancelled tick.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				log.Warn("[Settlement] failed to release claim", zap.Error(err))
			}
		}()
	}

	// Fresh read: the latch may have closed since the scan.
	t, err := p.Store.GetTournament(ctx, tournamentID)
	if err != nil {
		log.Error("[Settlement] failed to load tournament", zap.Error(err))
		return StatePending, nil, err
	}
	if t.Processed {
		if t.Status == models.TournamentStatusValid {
			return StateSettledValid, nil, nil
		}
		return StateSettledInvalid, nil, nil
	}
	if now := p.Clock(); !t.MatchResultTime.Before(now) {
		log.Info("[Settlement] match result not due yet, leaving unprocessed",
			zap.Time("match_result_time", t.MatchResultTime))
		return StatePending, nil, ErrSettlementNotDue
	}

	participants, err := p.Store.ListParticipants(ctx, t.ID)
	if err != nil {
		log.Error("[Settlement] failed to load participants", zap.Error(err))
		return StatePending, nil, err
	}
	if len(participants) == 0 {
		log.Warn("[Settlement] ⚠️ no participants found, leaving unprocessed")
		return StatePending, nil, nil
	}

	log.Info("[Settlement] 🔄 verifying match", zap.Int("participants", len(participants)))
	report, err := p.verifyAndSettle(ctx, t, participants)

	switch {
	case err == nil:
		p.clearAttempts(t.ID)
		return p.commit(ctx, t, report)

	case errors.Is(err, ErrVerificationUnavailable):
		p.Metrics.VerificationFailed()
		log.Warn("[Settlement] verification unavailable, will retry next tick", zap.Error(err))
		return StatePending, nil, err

	case ctx.Err() != nil:
		log.Warn("[Settlement] interrupted, will retry next tick", zap.Error(err))
		return StatePending, nil, err

	case errors.Is(err, errWritesIncomplete):
		attempts := p.recordAttempt(t.ID)
		if attempts < p.maxWriteAttempts() {
			log.Warn("[Settlement] some ledger writes failed, will retry the remainder next tick",
				zap.Int("attempt", attempts), zap.Error(err))
			return StatePending, report, err
		}
		log.Error("[Settlement] ❌ ledger writes still failing, giving up", zap.Int("attempts", attempts), zap.Error(err))
		p.clearAttempts(t.ID)
		return p.commitFailure(ctx, t, report, err)
	}

	log.Error("[Settlement] ❌ settlement failed", zap.Error(err))
	return p.commitFailure(ctx, t, report, err)
}

// verifyAndSettle runs validation, payout or refund. Panics become settlement failures.
func (p *SettlementProcessor) verifyAndSettle(ctx context.Context, t *models.Tournament, participants []ParticipantIdentity) (report *models.SettlementReport, err error) {
	report = &models.SettlementReport{
		TournamentID:   t.ID,
		TournamentName: t.Name,
		PrizePool:      t.PrizePool,
		JoiningFee:     t.JoiningFee,
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", errSettlementFailure, r)
		}
	}()

	query := MatchQuery{
		Players:           RosterFromParticipants(participants),
		ExpectedStartTime: t.MatchStartTime,
		ExpectedMap:       t.MatchMap,
	}

	validation, err := p.Verifier.Validate(ctx, query)
	if err != nil {
		return nil, err
	}
	report.MatchID = validation.MatchID
	report.Message = validation.Message

	if !validation.Passed {
		p.Logger.Info("[Settlement] ❌ match validation rejected, refunding",
			zap.String("tournament_id", t.ID),
			zap.String("message", validation.Message),
			zap.Float64("percentage_with_match", validation.PercentageWithMatch),
		)
		report.Outcome = models.SettlementOutcomeInvalid
		return report, p.refundParticipants(ctx, t, participants, report)
	}

	leaderboard, err := p.Verifier.Leaderboard(ctx, query)
	if err != nil {
		return nil, err
	}
	if leaderboard.MatchID != "" {
		report.MatchID = leaderboard.MatchID
	}

	report.Outcome = models.SettlementOutcomeValid
	return report, p.awardPrizes(ctx, t, participants, leaderboard.Entries, report)
}

func (p *SettlementProcessor) awardPrizes(ctx context.Context, t *models.Tournament, participants []ParticipantIdentity, entries []LeaderboardEntry, report *models.SettlementReport) error {
	pcts := [maxPrizedPositions]decimal.Decimal{t.PrizePct(1), t.PrizePct(2), t.PrizePct(3)}
	amounts := PrizeAmounts(pcts, t.PrizePool)

	p.Logger.Info("[Settlement] 💰 prize allocation",
		zap.String("tournament_id", t.ID),
		zap.Int64("prize_pool", t.PrizePool),
		zap.Int64("first", amounts[0]),
		zap.Int64("second", amounts[1]),
		zap.Int64("third", amounts[2]),
	)

	failed := 0
	awarded := map[string]int{}
	positions := min(maxPrizedPositions, len(entries))
	for i := 0; i < positions; i++ {
		position := i + 1
		amount := amounts[i]
		if amount <= 0 {
			continue
		}

		entry := entries[i]
		identity := findIdentity(participants, entry.PlayerInfo)
		if identity == nil {
			p.Logger.Error("[Settlement] ❌ winner not enrolled, skipping position",
				zap.String("tournament_id", t.ID),
				zap.Int("position", position),
				zap.String("player", entry.PlayerInfo.Name+"#"+entry.PlayerInfo.Tag),
			)
			continue
		}
		// One prize per player per tournament; a repeated leaderboard entry forfeits the later position.
		if first, ok := awarded[identity.UserID]; ok {
			p.Logger.Warn("[Settlement] player already placed, skipping position",
				zap.String("tournament_id", t.ID),
				zap.String("user_id", identity.UserID),
				zap.Int("position", position),
				zap.Int("awarded_position", first),
			)
			continue
		}
		awarded[identity.UserID] = position

		refID := t.ID
		tx, balance, err := p.Ledger.ApplyTransaction(ctx, TransactionRequest{
			UserID:      identity.UserID,
			Type:        models.TransactionTypeTournamentPrize,
			Amount:      amount,
			Description: fmt.Sprintf("%s place prize for %s", Ordinal(position), t.Name),
			RefID:       &refID,
		})

		award := models.PrizeAward{
			Position:           position,
			PlayerName:         identity.DisplayName(),
			UserID:             identity.UserID,
			Kills:              entry.Kills,
			AverageCombatScore: entry.AverageCombatScore,
			PrizeAmount:        amount,
		}
		switch {
		case errors.Is(err, ErrDuplicateSettlement):
			award.AlreadyApplied = true
		case err != nil:
			failed++
			p.Logger.Error("[Settlement] ❌ failed to credit prize",
				zap.String("tournament_id", t.ID),
				zap.String("user_id", identity.UserID),
				zap.Int("position", position),
				zap.Error(err),
			)
			continue
		default:
			award.NewBalance = balance
			award.TransactionID = tx.ID
			p.Logger.Info("[Settlement] ✅ prize credited",
				zap.String("tournament_id", t.ID),
				zap.String("player", award.PlayerName),
				zap.Int("position", position),
				zap.Int64("amount", amount),
			)
		}
		report.Winners = append(report.Winners, award)
		report.TotalAllocated += amount
	}

	report.FailedWrites = failed
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d prizes", errWritesIncomplete, failed, positions)
	}
	return nil
}

func (p *SettlementProcessor) refundParticipants(ctx context.Context, t *models.Tournament, participants []ParticipantIdentity, report *models.SettlementReport) error {
	if t.JoiningFee <= 0 {
		p.Logger.Info("[Settlement] no joining fee to refund", zap.String("tournament_id", t.ID))
		return nil
	}

	failed := 0
	for _, participant := range participants {
		refID := t.ID
		tx, balance, err := p.Ledger.ApplyTransaction(ctx, TransactionRequest{
			UserID:      participant.PlayerID,
			Type:        models.TransactionTypeTournamentRefund,
			Amount:      t.JoiningFee,
			Description: fmt.Sprintf("Joining fee refund for %s (match invalid)", t.Name),
			RefID:       &refID,
		})

		record := models.RefundRecord{
			UserID:       participant.PlayerID,
			RefundAmount: t.JoiningFee,
		}
		if participant.Identity != nil {
			record.PlayerName = participant.Identity.DisplayName()
		}

		switch {
		case errors.Is(err, ErrDuplicateSettlement):
			record.AlreadyApplied = true
		case err != nil:
			failed++
			p.Logger.Error("[Settlement] ❌ failed to refund joining fee",
				zap.String("tournament_id", t.ID),
				zap.String("user_id", participant.PlayerID),
				zap.Error(err),
			)
			continue
		default:
			record.NewBalance = balance
			record.TransactionID = tx.ID
		}
		report.Refunds = append(report.Refunds, record)
		report.TotalRefunded += t.JoiningFee
	}

	p.Logger.Info("[Settlement] 💰 joining fees refunded",
		zap.String("tournament_id", t.ID),
		zap.Int("refunded", len(report.Refunds)),
		zap.Int("participants", len(participants)),
	)

	report.FailedWrites = failed
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d refunds", errWritesIncomplete, failed, len(participants))
	}
	return nil
}

func (p *SettlementProcessor) commit(ctx context.Context, t *models.Tournament, report *models.SettlementReport) (SettlementState, *models.SettlementReport, error) {
	status := models.TournamentStatusValid
	state := StateSettledValid
	if report.Outcome != models.SettlementOutcomeValid {
		status = models.TournamentStatusInvalid
		state = StateSettledInvalid
	}

	if _, err := p.Store.MarkProcessed(ctx, t.ID, status); err != nil {
		// Writes already landed are idempotent, so the next tick can safely redo this.
		p.Logger.Error("[Settlement] failed to mark tournament processed",
			zap.String("tournament_id", t.ID), zap.Error(err))
		return StatePending, report, err
	}

	report.SettledAt = p.Clock()
	p.Metrics.Settled(string(report.Outcome))
	p.Logger.Info("[Settlement] ✅ tournament settled",
		zap.String("tournament_id", t.ID),
		zap.String("status", string(status)),
		zap.Int("winners", len(report.Winners)),
		zap.Int64("total_allocated", report.TotalAllocated),
		zap.Int("refunds", len(report.Refunds)),
		zap.Int64("total_refunded", report.TotalRefunded),
	)
	p.archive(ctx, report)
	return state, report, nil
}

// commitFailure settles a tournament as invalid after an unrecoverable processing error.
func (p *SettlementProcessor) commitFailure(ctx context.Context, t *models.Tournament, report *models.SettlementReport, cause error) (SettlementState, *models.SettlementReport, error) {
	if report == nil {
		report = &models.SettlementReport{TournamentID: t.ID, TournamentName: t.Name, PrizePool: t.PrizePool, JoiningFee: t.JoiningFee}
	}
	report.Outcome = models.SettlementOutcomeFailed
	report.Error = cause.Error()

	if _, err := p.Store.MarkProcessed(ctx, t.ID, models.TournamentStatusInvalid); err != nil {
		p.Logger.Error("[Settlement] failed to mark tournament processed after failure",
			zap.String("tournament_id", t.ID), zap.Error(err))
		return StatePending, report, errors.Join(cause, err)
	}

	report.SettledAt = p.Clock()
	p.Metrics.Settled(string(report.Outcome))
	p.archive(ctx, report)
	return StateSettledInvalid, report, cause
}

func (p *SettlementProcessor) archive(ctx context.Context, report *models.SettlementReport) {
	if p.Archive == nil {
		return
	}
	url, err := p.Archive.Archive(ctx, report)
	if err != nil {
		p.Logger.Warn("[Settlement] failed to archive settlement receipt",
			zap.String("tournament_id", report.TournamentID), zap.Error(err))
		return
	}
	p.Logger.Info("[Settlement] receipt archived", zap.String("tournament_id", report.TournamentID), zap.String("url", url))
}

func (p *SettlementProcessor) maxWriteAttempts() int {
	if p.MaxWriteAttempts <= 0 {
		return DefaultMaxWriteAttempts
	}
	return p.MaxWriteAttempts
}

func (p *SettlementProcessor) recordAttempt(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeAttempts == nil {
		p.writeAttempts = map[string]int{}
	}
	p.writeAttempts[id]++
	return p.writeAttempts[id]
}

func (p *SettlementProcessor) clearAttempts(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.writeAttempts, id)
}
