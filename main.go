package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tournament-settlement/config"
	"tournament-settlement/handlers"
	"tournament-settlement/middleware"
	"tournament-settlement/services"
	"tournament-settlement/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ invalid configuration: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("❌ failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("settlement service exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		if err := services.Migrate(db); err != nil {
			return err
		}
		logger.Info("✅ database migrated")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics(registry)

	store := services.NewGormTournamentStore(db)
	ledger := services.NewLedgerService(db, logger, metrics)
	verifier := services.NewVerificationClient(cfg.VerificationURL, cfg.VerificationTimeout)

	finalizer := services.NewPrizePoolFinalizer(store, logger, metrics, cfg.FinalizeWindow)
	processor := services.NewSettlementProcessor(store, verifier, ledger, logger, metrics)

	if cfg.RedisURL != "" {
		rdb, err := services.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		processor.Lock = services.NewRedisSettlementLock(rdb, cfg.SettlementLockTTL)
		logger.Info("✅ distributed settlement lock enabled", zap.Duration("ttl", cfg.SettlementLockTTL))
	} else {
		logger.Warn("⚠️ REDIS_URL not set, run a single settlement instance")
	}

	if cfg.R2.Enabled() {
		r2, err := utils.InitR2(ctx, cfg.R2)
		if err != nil {
			return err
		}
		processor.Archive = services.NewReceiptArchive(r2)
		logger.Info("✅ settlement receipts archived to R2", zap.String("bucket", cfg.R2.Bucket))
	}

	scheduler := services.NewSettlementScheduler(finalizer, processor, logger, metrics,
		cfg.SettlementInterval, services.StopTimeoutFor(cfg.VerificationTimeout))

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	app.Use(recover.New())

	handlers.SetupHealthRoutes(app, registry, sqlDB.PingContext)

	secured := app.Group("/", middleware.ServiceTokenAuth(cfg.ServiceToken, logger))
	handlers.SetupWalletRoutes(secured, ledger, logger)
	handlers.SetupSettlementRoutes(secured, processor, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("✅ wallet API listening", zap.String("addr", cfg.HTTPAddr))
		return app.Listen(cfg.HTTPAddr)
	})

	g.Go(func() error {
		if err := scheduler.Start(); err != nil {
			return err
		}
		<-gctx.Done()
		return scheduler.Stop()
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down wallet API")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("settlement service stopped")
	return nil
}
