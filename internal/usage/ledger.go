// Package usage keeps the per-app daily usage ledger.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/enforcer"
	"github.com/lxj901/qingheplan-sub004/internal/metrics"
	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"github.com/rs/zerolog"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// Ledger records seconds of use per app and day. The in-memory map is the
// source of truth for the running process; storage is written through.
type Ledger struct {
	store     storage.UsageStore
	telemetry enforcer.UsageTelemetry // optional
	clock     Clock
	loc       *time.Location
	logger    zerolog.Logger
	mu        sync.RWMutex
	days      map[string]map[string]int64 // date -> app token -> seconds
}

// NewLedger creates a usage ledger. telemetry may be nil.
func NewLedger(store storage.UsageStore, telemetry enforcer.UsageTelemetry, clock Clock, loc *time.Location, logger zerolog.Logger) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{
		store:     store,
		telemetry: telemetry,
		clock:     clock,
		loc:       loc,
		logger:    logger.With().Str("component", "usage-ledger").Logger(),
		days:      make(map[string]map[string]int64),
	}
}

// Load replaces the in-memory usage for date with what storage holds. A
// storage failure leaves the day at zero usage.
func (l *Ledger) Load(ctx context.Context, date string) {
	records, err := l.store.ListDailyUsage(ctx, date)
	if err != nil {
		l.logger.Error().Err(err).Str("date", date).Msg("Failed to load daily usage, assuming none")
		records = nil
	}

	day := make(map[string]int64, len(records))
	for _, r := range records {
		if r.TotalSeconds > 0 {
			day[r.AppToken] += r.TotalSeconds
		}
	}

	l.mu.Lock()
	l.days[date] = day
	l.mu.Unlock()

	l.logger.Debug().Str("date", date).Int("apps", len(day)).Msg("Daily usage loaded")
}

// Record adds seconds of use for an app. Non-positive amounts are ignored.
func (l *Ledger) Record(ctx context.Context, appToken string, seconds int64, date string) {
	if seconds <= 0 || appToken == "" {
		return
	}

	l.mu.Lock()
	day, ok := l.days[date]
	if !ok {
		day = make(map[string]int64)
		l.days[date] = day
	}
	day[appToken] += seconds
	total := day[appToken]
	l.mu.Unlock()

	metrics.UsageSecondsTotal.WithLabelValues(appToken).Add(float64(seconds))

	if err := l.store.IncrementDailyUsage(ctx, date, appToken, seconds); err != nil {
		l.logger.Error().Err(err).Str("app_token", appToken).Str("date", date).Msg("Failed to persist usage")
	}

	l.logger.Debug().
		Str("app_token", appToken).
		Str("date", date).
		Int64("seconds", seconds).
		Int64("total_seconds", total).
		Msg("Usage recorded")
}

// LocalSeconds returns the seconds recorded locally for an app and day.
func (l *Ledger) LocalSeconds(appToken, date string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.days[date][appToken]
}

// UsedSeconds returns the best known usage for an app and day. For today a
// positive telemetry reading wins; otherwise the local ledger is used.
// Name-keyed rules have no token to query and always use the local ledger.
func (l *Ledger) UsedSeconds(ctx context.Context, appToken, date string) int64 {
	if l.telemetry != nil && !storage.IsNameKey(appToken) && date == storage.DateKey(l.clock.Now(), l.loc) {
		minutes, err := l.telemetry.AppUsedMinutes(ctx, appToken)
		if err != nil {
			l.logger.Warn().Err(err).Str("app_token", appToken).Msg("Usage telemetry unavailable, using local ledger")
		} else if minutes > 0 {
			return int64(minutes) * 60
		}
	}
	return l.LocalSeconds(appToken, date)
}

// UsageFor returns UsedSeconds for every token.
func (l *Ledger) UsageFor(ctx context.Context, appTokens []string, date string) map[string]int64 {
	used := make(map[string]int64, len(appTokens))
	for _, token := range appTokens {
		used[token] = l.UsedSeconds(ctx, token, date)
	}
	return used
}

// Forget drops in-memory days before date.
func (l *Ledger) Forget(before string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for date := range l.days {
		if date < before {
			delete(l.days, date)
		}
	}
}
