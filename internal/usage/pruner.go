package usage

import (
	"context"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"github.com/rs/zerolog"
)

// PruneResult counts the records removed by one prune pass.
type PruneResult struct {
	UsageDeleted     int
	UnlocksDeleted   int
	OverridesDeleted int
	CutoffDate       string
}

// Pruner removes old usage history, expired temporary unlocks and stale
// penalty overrides once a day.
type Pruner struct {
	usage         storage.UsageStore
	unlocks       storage.UnlockStore
	retentionDays int
	pruneTime     time.Time // only hour and minute are used
	clock         Clock
	loc           *time.Location
	logger        zerolog.Logger
	stopChan      chan struct{}
}

// NewPruner creates a pruner that runs daily at pruneTime (HH:MM).
func NewPruner(usage storage.UsageStore, unlocks storage.UnlockStore, retentionDays int, pruneTime string, clock Clock, loc *time.Location, logger zerolog.Logger) (*Pruner, error) {
	parsedTime, err := time.Parse("15:04", pruneTime)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}

	return &Pruner{
		usage:         usage,
		unlocks:       unlocks,
		retentionDays: retentionDays,
		pruneTime:     parsedTime,
		clock:         clock,
		loc:           loc,
		logger:        logger.With().Str("component", "usage-pruner").Logger(),
		stopChan:      make(chan struct{}),
	}, nil
}

// Start begins the daily prune loop.
func (p *Pruner) Start() {
	go p.run()
	p.logger.Info().
		Str("prune_time", p.pruneTime.Format("15:04")).
		Int("retention_days", p.retentionDays).
		Msg("Usage pruner started")
}

// Stop stops the prune loop.
func (p *Pruner) Stop() {
	close(p.stopChan)
	p.logger.Info().Msg("Usage pruner stopped")
}

func (p *Pruner) run() {
	for {
		next := p.NextRun(p.clock.Now())
		wait := next.Sub(p.clock.Now())

		p.logger.Debug().
			Time("next_prune", next).
			Dur("wait_duration", wait).
			Msg("Scheduled next usage prune")

		select {
		case <-time.After(wait):
			p.Prune(context.Background())
		case <-p.stopChan:
			return
		}
	}
}

// NextRun returns the first prune time strictly after now.
func (p *Pruner) NextRun(now time.Time) time.Time {
	local := now.In(p.loc)
	today := time.Date(
		local.Year(), local.Month(), local.Day(),
		p.pruneTime.Hour(), p.pruneTime.Minute(), 0, 0,
		p.loc,
	)
	if !local.Before(today) {
		return today.AddDate(0, 0, 1)
	}
	return today
}

// Prune deletes everything older than the retention window. Failures are
// logged and the remaining steps still run.
func (p *Pruner) Prune(ctx context.Context) PruneResult {
	now := p.clock.Now()
	result := PruneResult{
		CutoffDate: storage.DateKey(now.AddDate(0, 0, -p.retentionDays), p.loc),
	}

	p.logger.Info().Str("cutoff_date", result.CutoffDate).Msg("Pruning usage history")

	var err error
	if result.UsageDeleted, err = p.usage.DeleteDailyUsageBefore(ctx, result.CutoffDate); err != nil {
		p.logger.Error().Err(err).Msg("Failed to prune daily usage")
	}

	if result.UnlocksDeleted, err = p.unlocks.DeleteExpiredUnlocks(ctx, now); err != nil {
		p.logger.Error().Err(err).Msg("Failed to prune expired temporary unlocks")
	}

	// Overrides only matter on the day they were granted
	today := storage.DateKey(now, p.loc)
	if result.OverridesDeleted, err = p.unlocks.DeleteOverridesBefore(ctx, today); err != nil {
		p.logger.Error().Err(err).Msg("Failed to prune penalty overrides")
	}

	p.logger.Info().
		Int("usage_deleted", result.UsageDeleted).
		Int("unlocks_deleted", result.UnlocksDeleted).
		Int("overrides_deleted", result.OverridesDeleted).
		Msg("Usage prune complete")
	return result
}
