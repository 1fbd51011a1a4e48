package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/josh-kwaku/withdrawal-settlement/internal/config"
	"github.com/josh-kwaku/withdrawal-settlement/internal/eligibility"
	"github.com/josh-kwaku/withdrawal-settlement/internal/fee"
	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
	"github.com/josh-kwaku/withdrawal-settlement/internal/notify"
	"github.com/josh-kwaku/withdrawal-settlement/internal/repository"
	"github.com/josh-kwaku/withdrawal-settlement/internal/service"
	"github.com/josh-kwaku/withdrawal-settlement/internal/service/codes"
	"github.com/josh-kwaku/withdrawal-settlement/internal/service/ledger"
	"github.com/josh-kwaku/withdrawal-settlement/internal/service/withdrawal"
)

var operatorFlag string

var rootCmd = &cobra.Command{
	Use:   "operator",
	Short: "Withdrawal operator console",
	Long: `Issue and revoke withdrawal codes, review pending withdrawal requests
and confirm or decline them. Reads the same environment as the API server.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&operatorFlag, "operator", os.Getenv("OPERATOR_ID"), "operator id recorded on issued codes and decisions (env OPERATOR_ID)")
}

// app is the service graph for one CLI invocation. Notifications are
// drained before close returns.
type app struct {
	cfg         *config.Config
	withdrawals *withdrawal.Service
	housekeeper *service.Housekeeper
	close       func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.Init("withdrawal-operator", cfg.LogLevel, cfg.AppEnv)

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     4,
		MaxIdleConns:     2,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
		PingAttempts:     3,
	})
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
	}

	sinks, closeSinks := notify.BuildSinks(notify.SinkConfig{
		ChatWebhookURL: cfg.ChatWebhookURL,
		Redis:          rdb,
		Stream:         cfg.NotifyStream,
		KafkaBrokers:   cfg.KafkaBrokers,
		KafkaTopic:     cfg.KafkaTopic,
	})
	dispatcher := notify.NewDispatcher(cfg.NotifyBuffer, logger, sinks...)
	dispatcher.Start(1)

	store := repository.NewDB(db)
	accounts := repository.NewAccountRepository(db)
	registry := codes.NewRegistry(
		repository.NewWithdrawalCodeRepository(db),
		accounts,
		store,
		cfg.CodeTTL,
		cfg.CodeIssueMaxAttempts,
	)

	a := &app{
		cfg: cfg,
		withdrawals: withdrawal.NewService(withdrawal.Deps{
			Codes:    registry,
			Ledger:   ledger.New(accounts, repository.NewLedgerRepository(db)),
			Accounts: accounts,
			Requests: repository.NewWithdrawalRequestRepository(db),
			Events:   repository.NewWithdrawalEventRepository(db),
			Gate:     eligibility.Policy{Minimum: cfg.MinWithdrawal},
			Fees:     fee.NewRateService(cfg.FeeRateChainA, cfg.FeeRateChainB, cfg.FeeRateBankTransfer),
			Notifier: dispatcher,
			DB:       store,
		}),
		housekeeper: service.NewHousekeeper(registry, repository.NewIdempotencyRepository(db), dispatcher, logger, cfg.SweepInterval, cfg.SweepBatch),
	}
	a.close = func() {
		dispatcher.Shutdown()
		if err := closeSinks(); err != nil {
			slog.Warn("failed to close notification sinks", "error", err)
		}
		if rdb != nil {
			rdb.Close()
		}
		db.Close()
	}
	return a, nil
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func operatorID() (uuid.UUID, error) {
	if operatorFlag == "" {
		return uuid.Nil, fmt.Errorf("--operator or OPERATOR_ID is required")
	}
	id, err := uuid.Parse(operatorFlag)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--operator must be a UUID: %w", err)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
