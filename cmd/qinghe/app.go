package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/budget"
	"github.com/lxj901/qingheplan-sub004/internal/config"
	"github.com/lxj901/qingheplan-sub004/internal/countdown"
	"github.com/lxj901/qingheplan-sub004/internal/enforcer"
	"github.com/lxj901/qingheplan-sub004/internal/policy"
	"github.com/lxj901/qingheplan-sub004/internal/rules"
	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"github.com/lxj901/qingheplan-sub004/internal/storage/bolt"
	"github.com/lxj901/qingheplan-sub004/internal/storage/redis"
	"github.com/lxj901/qingheplan-sub004/internal/usage"
	"github.com/rs/zerolog"
)

// app bundles the components shared by the daemon and the one-shot commands.
type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	loc         *time.Location
	clock       countdown.Clock
	store       storage.Store
	enforcer    *enforcer.Passive
	rules       *rules.Store
	ledger      *usage.Ledger
	policy      *policy.Engine
	coordinator *budget.Coordinator
}

// newApp opens storage and wires the coordinator. The caller must Close it.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Budget.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}
	thresholds, err := cfg.Budget.Thresholds()
	if err != nil {
		return nil, err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	policyEngine, err := policy.NewEngine(cfg.Policy.Dir, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize Policy Engine: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		loc:      loc,
		clock:    countdown.RealClock{},
		store:    store,
		enforcer: enforcer.NewPassive(logger),
		policy:   policyEngine,
	}

	var telemetry enforcer.UsageTelemetry
	if cfg.Telemetry.Enabled {
		telemetry = a.enforcer
	}

	a.rules = rules.New(ctx, store.Rules(), a.clock, logger)
	a.ledger = usage.NewLedger(store.Usage(), telemetry, a.clock, loc, logger)
	a.coordinator = budget.NewCoordinator(
		store,
		a.rules,
		a.ledger,
		a.enforcer,
		policyEngine,
		a.clock,
		budget.Options{
			PenaltyMinutes: int64(cfg.Budget.PenaltyMinutes),
			Thresholds:     thresholds,
			Location:       loc,
			TickInterval:   parseDuration(cfg.Budget.TickInterval, time.Second),
		},
		logger,
	)
	a.rules.OnChange(func() { a.coordinator.OnRulesChanged(ctx) })
	a.coordinator.Restore(ctx)

	return a, nil
}

// Close persists the countdown and closes storage.
func (a *app) Close() {
	a.coordinator.Persist(context.Background())
	if err := a.store.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close storage")
	}
}

// openCommandApp loads configuration for a one-shot command with a quiet logger.
func openCommandApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for command mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	return newApp(ctx, cfg, logger)
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "bolt"
	}

	switch storageType {
	case "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be bolt or redis)", storageType)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
