package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	CodeTTL              time.Duration   `env:"CODE_TTL" envDefault:"15m"`
	CodeIssueMaxAttempts int             `env:"CODE_ISSUE_MAX_ATTEMPTS" envDefault:"5"`
	MinWithdrawal        decimal.Decimal `env:"MIN_WITHDRAWAL" envDefault:"200"`

	FeeRateChainA       decimal.Decimal `env:"FEE_RATE_CHAIN_A" envDefault:"0.015"`
	FeeRateChainB       decimal.Decimal `env:"FEE_RATE_CHAIN_B" envDefault:"0.01"`
	FeeRateBankTransfer decimal.Decimal `env:"FEE_RATE_BANK_TRANSFER" envDefault:"0"`
	BitcoinNetwork      string          `env:"BITCOIN_NETWORK" envDefault:"mainnet"`

	RedisURL       string   `env:"REDIS_URL"`
	KafkaBrokers   []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic     string   `env:"KAFKA_TOPIC" envDefault:"withdrawal-notifications"`
	ChatWebhookURL string   `env:"CHAT_WEBHOOK_URL"`
	NotifyStream   string   `env:"NOTIFY_STREAM" envDefault:"withdrawal:notifications"`
	NotifyWorkers  int      `env:"NOTIFY_WORKERS" envDefault:"4"`
	NotifyBuffer   int      `env:"NOTIFY_BUFFER" envDefault:"256"`

	RedeemMaxFailures   int           `env:"REDEEM_MAX_FAILURES" envDefault:"5"`
	RedeemFailureWindow time.Duration `env:"REDEEM_FAILURE_WINDOW" envDefault:"15m"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	SweepBatch    int           `env:"SWEEP_BATCH" envDefault:"100"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c Config) validate() error {
	if c.CodeTTL <= 0 {
		return fmt.Errorf("CODE_TTL must be positive")
	}
	if c.CodeIssueMaxAttempts < 1 {
		return fmt.Errorf("CODE_ISSUE_MAX_ATTEMPTS must be at least 1")
	}
	if !c.MinWithdrawal.IsPositive() {
		return fmt.Errorf("MIN_WITHDRAWAL must be positive")
	}
	for name, rate := range map[string]decimal.Decimal{
		"FEE_RATE_CHAIN_A":       c.FeeRateChainA,
		"FEE_RATE_CHAIN_B":       c.FeeRateChainB,
		"FEE_RATE_BANK_TRANSFER": c.FeeRateBankTransfer,
	} {
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("%s must be in [0, 1)", name)
		}
	}
	if c.BitcoinNetwork != "mainnet" && c.BitcoinNetwork != "testnet" {
		return fmt.Errorf("BITCOIN_NETWORK must be mainnet or testnet")
	}
	return nil
}
