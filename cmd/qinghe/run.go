package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/config"
	"github.com/lxj901/qingheplan-sub004/internal/countdown"
	"github.com/lxj901/qingheplan-sub004/internal/metrics"
	"github.com/lxj901/qingheplan-sub004/internal/systemd"
	"github.com/lxj901/qingheplan-sub004/internal/telemetry"
	"github.com/lxj901/qingheplan-sub004/internal/usage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Qinghe daemon",
	Long:  `Start the budget countdown, telemetry poller, usage pruner and metrics endpoint.`,
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting Qinghe")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get systemd listeners")
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("policy", a.policy.Source()).
		Str("timezone", a.loc.String()).
		Msg("Storage and Policy Engine initialized")

	if removed := a.rules.Deduplicate(ctx); removed > 0 {
		logger.Info().Int("removed", removed).Msg("Removed duplicate rules")
	}

	unsubscribe := a.coordinator.Subscribe(func(ev countdown.Event) {
		logger.Info().
			Str("event", string(ev.Type)).
			Int64("remaining_minutes", ev.RemainingMinutes).
			Int64("delta_minutes", ev.DeltaMinutes).
			Msg("Countdown event")
	})
	defer unsubscribe()

	countdownDone := make(chan struct{})
	go func() {
		defer close(countdownDone)
		a.coordinator.Run(ctx)
	}()

	// Initialize Telemetry Poller
	var poller *telemetry.Poller
	if cfg.Telemetry.Enabled {
		poller, err = telemetry.NewPoller(
			a.enforcer,
			a.rules,
			a.ledger,
			a.coordinator,
			a.clock,
			a.loc,
			parseDuration(cfg.Telemetry.PollInterval, time.Minute),
			cfg.Telemetry.CacheSize,
			logger,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize Telemetry Poller: %w", err)
		}
		poller.Start()
	}

	// Initialize Usage Pruner
	pruner, err := usage.NewPruner(
		a.store.Usage(),
		a.store.Unlocks(),
		cfg.Usage.RetentionDays,
		cfg.Usage.PruneTime,
		a.clock,
		a.loc,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize Usage Pruner: %w", err)
	}
	pruner.Start()

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		metricsServer = metrics.NewServer(metricsAddr, logger)

		// Use systemd socket-activated listener if available
		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}

		logger.Info().
			Str("addr", metricsAddr).
			Msg("Metrics Server started")
	}

	housekeepingDone := make(chan struct{})
	go func() {
		defer close(housekeepingDone)
		runHousekeeping(ctx, a)
	}()

	logger.Info().Msg("Qinghe startup complete")

	underSystemd := systemd.IsSystemdService()

	// Notify systemd that we're ready
	if underSystemd {
		if err := systemd.NotifyReady(); err != nil {
			logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
		} else {
			logger.Debug().Msg("Sent systemd ready notification")
		}
	}

	// Wait for signals (shutdown or reload)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// Signal handling loop
	for {
		sig := <-sigChan

		switch sig {
		case syscall.SIGHUP:
			logger.Info().Msg("SIGHUP received, reloading policies...")
			if err := a.policy.Reload(); err != nil {
				logger.Error().Err(err).Msg("Failed to reload policies")
			} else {
				logger.Info().Strs("files", a.policy.Files()).Msg("Policies reloaded successfully")
				a.coordinator.OnRulesChanged(ctx)
			}
			// Continue running
			continue

		case os.Interrupt, syscall.SIGTERM:
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
			// Break out of loop to shutdown
		}

		// Only reached on shutdown signals
		break
	}

	// Notify systemd that we're stopping
	if underSystemd {
		if err := systemd.NotifyStopping(); err != nil {
			logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
		}
	}

	pruner.Stop()
	if poller != nil {
		poller.Stop()
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	cancel()
	<-countdownDone
	<-housekeepingDone

	logger.Info().Msg("Qinghe stopped")

	return nil
}

// runHousekeeping applies restrictions scheduled by temporary unlocks and
// pings the systemd watchdog until ctx is cancelled.
func runHousekeeping(ctx context.Context, a *app) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var watchdog time.Duration
	if systemd.IsSystemdService() {
		watchdog = systemd.WatchdogInterval()
	}
	var lastPing time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if due := a.enforcer.Due(a.clock.Now()); len(due) > 0 {
				a.logger.Debug().Strs("apps", due).Msg("Scheduled restrictions reached")
			}
			if watchdog > 0 && now.Sub(lastPing) >= watchdog {
				if err := systemd.NotifyWatchdog(); err != nil {
					a.logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
				}
				lastPing = now
			}
		}
	}
}
