package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"

	env "github.com/caarlos0/env/v11"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
)

type migrateConfig struct {
	DatabaseURL   string `env:"DATABASE_URL,required,notEmpty"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv        string `env:"APP_ENV" envDefault:"production"`
}

func main() {
	var command string
	var version, steps int
	flag.StringVar(&command, "cmd", "up", "Command to run: up, down, steps, force, version")
	flag.IntVar(&version, "v", -1, "Version for force command")
	flag.IntVar(&steps, "n", 0, "Step count for steps command, negative to roll back")
	flag.Parse()

	cfg, err := env.ParseAs[migrateConfig]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init("withdrawal-migrate", cfg.LogLevel, cfg.AppEnv)

	m, err := migrate.New("file://"+cfg.MigrationsDir, cfg.DatabaseURL)
	if err != nil {
		slog.Error("migration init failed", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := run(m, command, version, steps); err != nil {
		slog.Error("migration failed", "cmd", command, "error", err)
		os.Exit(1)
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		slog.Error("failed to read schema version", "error", err)
		os.Exit(1)
	}
	slog.Info("migration done", "cmd", command, "version", v, "dirty", dirty)
}

func run(m *migrate.Migrate, command string, version, steps int) error {
	var err error
	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		if steps == 0 {
			return errors.New("-n is required for steps")
		}
		err = m.Steps(steps)
	case "force":
		if version == -1 {
			return errors.New("-v is required for force")
		}
		err = m.Force(version)
	case "version":
		return nil
	default:
		return errors.New("unknown command: " + command)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
