package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Runner is one phase of a scheduler tick.
type Runner interface {
	RunPhase(ctx context.Context, now time.Time) error
}

func (f *PrizePoolFinalizer) RunPhase(ctx context.Context, now time.Time) error {
	_, err := f.Run(ctx, now)
	return err
}

func (p *SettlementProcessor) RunPhase(ctx context.Context, now time.Time) error {
	_, err := p.Run(ctx, now)
	return err
}

// SettlementScheduler ticks the finalizer then the settlement processor on a fixed interval.
// Ticks never overlap: a tick still running when the next fires pushes it back.
type SettlementScheduler struct {
	Finalizer Runner
	Processor Runner
	Logger    *zap.Logger
	Metrics   *Metrics
	Interval  time.Duration
	Clock     func() time.Time

	// StopTimeout bounds how long Stop waits for an in-flight tick.
	StopTimeout time.Duration

	sched  gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
}

// minStopTimeout leaves room for the database work around the verifier calls.
const minStopTimeout = 30 * time.Second

// StopTimeoutFor sizes the shutdown wait so a tick blocked on both verifier calls can finish.
func StopTimeoutFor(verificationTimeout time.Duration) time.Duration {
	return 2*verificationTimeout + minStopTimeout
}

func NewSettlementScheduler(finalizer, processor Runner, logger *zap.Logger, metrics *Metrics, interval, stopTimeout time.Duration) *SettlementScheduler {
	return &SettlementScheduler{
		Finalizer:   finalizer,
		Processor:   processor,
		Logger:      logger,
		Metrics:     metrics,
		Interval:    interval,
		Clock:       func() time.Time { return time.Now().UTC() },
		StopTimeout: stopTimeout,
	}
}

// Start registers the tick job and starts the scheduler. The first tick runs immediately.
func (s *SettlementScheduler) Start() error {
	stopTimeout := s.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = minStopTimeout
	}

	sched, err := gocron.NewScheduler(gocron.WithStopTimeout(stopTimeout))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	_, err = sched.NewJob(
		gocron.DurationJob(s.Interval),
		gocron.NewTask(func() {
			s.RunOnce(s.ctx)
		}),
		gocron.WithName("settlement-tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		s.cancel()
		_ = sched.Shutdown()
		return fmt.Errorf("failed to schedule settlement tick: %w", err)
	}

	s.sched = sched
	sched.Start()
	s.Logger.Info("[Scheduler] ⏰ settlement scheduler started", zap.Duration("interval", s.Interval))
	return nil
}

// Stop waits up to StopTimeout for an in-flight tick to finish. The tick's context is
// cancelled only after shutdown returns, so ledger writes in progress are not interrupted.
func (s *SettlementScheduler) Stop() error {
	if s.sched == nil {
		return nil
	}
	err := s.sched.Shutdown()
	s.cancel()
	s.sched = nil
	if err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	s.Logger.Info("[Scheduler] settlement scheduler stopped")
	return nil
}

// RunOnce performs a single tick: finalize prize pools, then settle finished matches.
func (s *SettlementScheduler) RunOnce(ctx context.Context) {
	started := time.Now()
	now := s.Clock()

	if s.Finalizer != nil {
		if err := s.Finalizer.RunPhase(ctx, now); err != nil {
			s.Logger.Error("[Scheduler] finalizer phase failed", zap.Error(err))
		}
	}
	if s.Processor != nil {
		if err := s.Processor.RunPhase(ctx, now); err != nil {
			s.Logger.Error("[Scheduler] settlement phase failed", zap.Error(err))
		}
	}

	s.Metrics.ObserveTick(time.Since(started))
}
