package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/withdrawal-settlement/internal/config"
	"github.com/josh-kwaku/withdrawal-settlement/internal/eligibility"
	"github.com/josh-kwaku/withdrawal-settlement/internal/fee"
	"github.com/josh-kwaku/withdrawal-settlement/internal/handler"
	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
	"github.com/josh-kwaku/withdrawal-settlement/internal/metrics"
	"github.com/josh-kwaku/withdrawal-settlement/internal/notify"
	"github.com/josh-kwaku/withdrawal-settlement/internal/ratelimit"
	"github.com/josh-kwaku/withdrawal-settlement/internal/repository"
	"github.com/josh-kwaku/withdrawal-settlement/internal/service"
	"github.com/josh-kwaku/withdrawal-settlement/internal/service/codes"
	"github.com/josh-kwaku/withdrawal-settlement/internal/service/ledger"
	"github.com/josh-kwaku/withdrawal-settlement/internal/service/withdrawal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("withdrawal-api", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
		PingAttempts:     30,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	dispatcher, closeSinks := buildDispatcher(cfg, rdb, logger)
	dispatcher.OnResult(metrics.DeliveryResult)
	dispatcher.Start(cfg.NotifyWorkers)

	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(cfg.RedeemMaxFailures, cfg.RedeemFailureWindow)
	if rdb != nil {
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RedeemMaxFailures, cfg.RedeemFailureWindow)
	}

	store := repository.NewDB(db)
	accounts := repository.NewAccountRepository(db)
	idempotency := repository.NewIdempotencyRepository(db)

	registry := codes.NewRegistry(
		repository.NewWithdrawalCodeRepository(db),
		accounts,
		store,
		cfg.CodeTTL,
		cfg.CodeIssueMaxAttempts,
	)

	withdrawals := withdrawal.NewService(withdrawal.Deps{
		Codes:    registry,
		Ledger:   ledger.New(accounts, repository.NewLedgerRepository(db)),
		Accounts: accounts,
		Requests: repository.NewWithdrawalRequestRepository(db),
		Events:   repository.NewWithdrawalEventRepository(db),
		Gate:     eligibility.Policy{Minimum: cfg.MinWithdrawal},
		Fees:     fee.NewRateService(cfg.FeeRateChainA, cfg.FeeRateChainB, cfg.FeeRateBankTransfer),
		Notifier: dispatcher,
		Limiter:  limiter,
		DB:       store,
	})

	housekeeper := service.NewHousekeeper(registry, idempotency, dispatcher, logger, cfg.SweepInterval, cfg.SweepBatch)
	housekeeperDone := make(chan struct{})
	go func() {
		defer close(housekeeperDone)
		housekeeper.Start(ctx)
	}()

	checks := map[string]handler.Check{}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	router := newRouter(routerDeps{
		jwtSecret:   cfg.JWTSecret,
		health:      handler.NewHealthHandler(db, checks),
		holder:      handler.NewWithdrawalHandler(withdrawals, handler.NewDestinationValidator(cfg.BitcoinNetwork)),
		operator:    handler.NewOperatorHandler(withdrawals),
		idempotency: idempotency,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	<-housekeeperDone
	dispatcher.Shutdown()
	if err := closeSinks(); err != nil {
		slog.Warn("failed to close notification sinks", "error", err)
	}
	slog.Info("server stopped")
}

func buildDispatcher(cfg *config.Config, rdb *redis.Client, logger *slog.Logger) (*notify.Dispatcher, func() error) {
	sinks, closeSinks := notify.BuildSinks(notify.SinkConfig{
		ChatWebhookURL: cfg.ChatWebhookURL,
		Redis:          rdb,
		Stream:         cfg.NotifyStream,
		KafkaBrokers:   cfg.KafkaBrokers,
		KafkaTopic:     cfg.KafkaTopic,
	})
	logger.Info("notification sinks configured", "sinks", notify.SinkNames(sinks))
	return notify.NewDispatcher(cfg.NotifyBuffer, logger, sinks...), closeSinks
}
