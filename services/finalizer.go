package services

import (
	"context"
	"time"

	"tournament-settlement/models"

	"go.uber.org/zap"
)

type FinalizeSummary struct {
	Scanned   int
	Finalized int
	Failed    int
}

// PrizePoolFinalizer locks in each tournament's prize pool from actual headcount
// shortly before match start.
type PrizePoolFinalizer struct {
	Store   TournamentStore
	Logger  *zap.Logger
	Metrics *Metrics
	Window  time.Duration
}

func NewPrizePoolFinalizer(store TournamentStore, logger *zap.Logger, metrics *Metrics, window time.Duration) *PrizePoolFinalizer {
	return &PrizePoolFinalizer{Store: store, Logger: logger, Metrics: metrics, Window: window}
}

func (f *PrizePoolFinalizer) Run(ctx context.Context, now time.Time) (FinalizeSummary, error) {
	var summary FinalizeSummary

	tournaments, err := f.Store.DueForFinalization(ctx, now, now.Add(f.Window))
	if err != nil {
		f.Logger.Error("[Finalizer] scan failed", zap.Error(err))
		return summary, err
	}
	summary.Scanned = len(tournaments)
	if len(tournaments) == 0 {
		f.Logger.Debug("[Finalizer] no tournaments need final prize pool calculation")
		return summary, nil
	}

	f.Logger.Info("[Finalizer] 📋 tournaments need final prize pool calculation", zap.Int("count", len(tournaments)))

	for i := range tournaments {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		ok, err := f.finalize(ctx, &tournaments[i], now)
		switch {
		case err != nil:
			summary.Failed++
		case ok:
			summary.Finalized++
		}
	}
	return summary, nil
}

func (f *PrizePoolFinalizer) finalize(ctx context.Context, t *models.Tournament, now time.Time) (bool, error) {
	log := f.Logger.With(zap.String("tournament_id", t.ID), zap.String("name", t.Name))

	count, err := f.Store.CountParticipants(ctx, t.ID)
	if err != nil {
		log.Error("[Finalizer] ❌ failed to count participants", zap.Error(err))
		return false, err
	}

	pool := FinalPrizePool(count, t.JoiningFee, t.HostPercentage, t.HostContribution)

	updated, err := f.Store.SaveFinalPrizePool(ctx, t.ID, pool)
	if err != nil {
		log.Error("[Finalizer] ❌ failed to save prize pool; will retry next tick", zap.Error(err))
		return false, err
	}
	if !updated {
		log.Info("[Finalizer] prize pool already locked by another run")
		return false, nil
	}

	f.Metrics.PoolFinalized()
	log.Info("[Finalizer] ✅ final prize pool locked",
		zap.Int64("participants", count),
		zap.Int("capacity", t.Capacity),
		zap.Int64("joining_fee", t.JoiningFee),
		zap.String("host_percentage", t.HostPercentage.String()),
		zap.Int64("host_contribution", t.HostContribution),
		zap.Int64("prize_pool", pool),
		zap.Duration("until_start", t.MatchStartTime.Sub(now)),
	)
	return true, nil
}
