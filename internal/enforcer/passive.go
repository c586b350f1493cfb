package enforcer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Passive is used when an external agent performs the actual blocking. It
// logs every request and keeps the requested state in memory.
type Passive struct {
	logger     zerolog.Logger
	mu         sync.Mutex
	restricted map[string]bool
	scheduled  map[string]time.Time
}

// NewPassive creates a passive enforcer.
func NewPassive(logger zerolog.Logger) *Passive {
	return &Passive{
		logger:     logger.With().Str("component", "enforcer").Str("driver", "passive").Logger(),
		restricted: make(map[string]bool),
		scheduled:  make(map[string]time.Time),
	}
}

// AppUsedMinutes reports no measurement; callers fall back to the local ledger.
func (p *Passive) AppUsedMinutes(ctx context.Context, appToken string) (int, error) {
	return 0, nil
}

// ApplyRestriction records the app as restricted.
func (p *Passive) ApplyRestriction(ctx context.Context, appToken string) error {
	p.mu.Lock()
	p.restricted[appToken] = true
	p.mu.Unlock()

	p.logger.Info().Str("app_token", appToken).Msg("Restriction applied")
	return nil
}

// LiftRestriction records the app as unrestricted and drops its pending schedule.
func (p *Passive) LiftRestriction(ctx context.Context, appToken string) error {
	p.mu.Lock()
	delete(p.restricted, appToken)
	delete(p.scheduled, appToken)
	p.mu.Unlock()

	p.logger.Info().Str("app_token", appToken).Msg("Restriction lifted")
	return nil
}

// LiftAllRestrictions clears every restriction and schedule.
func (p *Passive) LiftAllRestrictions(ctx context.Context) error {
	p.mu.Lock()
	count := len(p.restricted)
	p.restricted = make(map[string]bool)
	p.scheduled = make(map[string]time.Time)
	p.mu.Unlock()

	p.logger.Info().Int("count", count).Msg("All restrictions lifted")
	return nil
}

// ScheduleRestrictionAt records a restriction to apply at a later time.
// Pending schedules are applied by Due.
func (p *Passive) ScheduleRestrictionAt(ctx context.Context, appToken string, at time.Time) error {
	p.mu.Lock()
	p.scheduled[appToken] = at
	p.mu.Unlock()

	p.logger.Info().Str("app_token", appToken).Time("at", at).Msg("Restriction scheduled")
	return nil
}

// IsRestricted reports the last requested state for the app.
func (p *Passive) IsRestricted(ctx context.Context, appToken string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restricted[appToken], nil
}

// Due applies every scheduled restriction whose time has come and returns
// the affected apps in sorted order.
func (p *Passive) Due(now time.Time) []string {
	p.mu.Lock()
	var due []string
	for token, at := range p.scheduled {
		if !now.Before(at) {
			due = append(due, token)
			p.restricted[token] = true
			delete(p.scheduled, token)
		}
	}
	p.mu.Unlock()

	sort.Strings(due)
	for _, token := range due {
		p.logger.Info().Str("app_token", token).Msg("Scheduled restriction applied")
	}
	return due
}

// Restricted returns the currently restricted apps in sorted order.
func (p *Passive) Restricted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.restricted))
	for token := range p.restricted {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

var (
	_ UsageTelemetry      = (*Passive)(nil)
	_ RestrictionEnforcer = (*Passive)(nil)
)
