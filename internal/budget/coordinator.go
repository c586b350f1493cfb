// Package budget turns earned minutes into app unlocks.
//
// The Coordinator is the single owner of the countdown, the earned budget and
// the override state. Every entry point serializes on one mutex and events
// are delivered to subscribers after the mutex is released.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lxj901/qingheplan-sub004/internal/allocator"
	"github.com/lxj901/qingheplan-sub004/internal/countdown"
	"github.com/lxj901/qingheplan-sub004/internal/enforcer"
	"github.com/lxj901/qingheplan-sub004/internal/metrics"
	"github.com/lxj901/qingheplan-sub004/internal/policy"
	"github.com/lxj901/qingheplan-sub004/internal/rules"
	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"github.com/lxj901/qingheplan-sub004/internal/usage"
	"github.com/rs/zerolog"
)

// Handler receives countdown events.
type Handler func(countdown.Event)

// Decider decides whether an app should be restricted.
type Decider interface {
	Decide(ctx context.Context, facts policy.Facts) (bool, error)
}

// UnlockStatus is the derived status of one app.
type UnlockStatus struct {
	RuleKey                  string
	AppToken                 string
	DisplayName              string
	IsUnlocked               bool
	RemainingSeconds         int64
	TotalAllottedSeconds     int64
	UsedSeconds              int64
	TemporarilyUnlocked      bool
	TemporaryUnlockExpiresAt time.Time
	PenaltyCancelled         bool
	Restricted               bool
}

// Options configures a Coordinator.
type Options struct {
	PenaltyMinutes int64
	Thresholds     []time.Duration
	Location       *time.Location
	TickInterval   time.Duration
}

// Coordinator owns the budget ledger for the device.
type Coordinator struct {
	store    storage.Store
	rules    *rules.Store
	ledger   *usage.Ledger
	enforcer enforcer.RestrictionEnforcer
	policy   Decider
	clock    countdown.Clock
	loc      *time.Location
	penalty  int64 // seconds
	interval time.Duration
	logger   zerolog.Logger

	mu         sync.Mutex
	date       string
	engine     *countdown.Engine
	agg        *Aggregator
	credited   int64 // highest total already turned into countdown time
	unlocks    map[string]storage.TemporaryUnlock
	overrides  map[string]storage.PenaltyOverride // today only
	restricted map[string]bool                    // last state sent to the enforcer

	subsMu  sync.RWMutex
	subs    map[int]Handler
	nextSub int
}

// NewCoordinator wires the coordinator. Call Restore before use.
func NewCoordinator(
	store storage.Store,
	ruleStore *rules.Store,
	ledger *usage.Ledger,
	enf enforcer.RestrictionEnforcer,
	decider Decider,
	clock countdown.Clock,
	opts Options,
	logger zerolog.Logger,
) *Coordinator {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.PenaltyMinutes <= 0 {
		opts.PenaltyMinutes = 5
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}

	return &Coordinator{
		store:      store,
		rules:      ruleStore,
		ledger:     ledger,
		enforcer:   enf,
		policy:     decider,
		clock:      clock,
		loc:        opts.Location,
		penalty:    opts.PenaltyMinutes * 60,
		interval:   opts.TickInterval,
		logger:     logger.With().Str("component", "coordinator").Logger(),
		engine:     countdown.NewEngine(opts.Thresholds, opts.Location),
		agg:        NewAggregator(),
		unlocks:    make(map[string]storage.TemporaryUnlock),
		overrides:  make(map[string]storage.PenaltyOverride),
		restricted: make(map[string]bool),
		subs:       make(map[int]Handler),
	}
}

// Restore loads persisted state for today, applies the time that passed
// while the process was down and pushes the resulting restrictions.
func (c *Coordinator) Restore(ctx context.Context) {
	c.mu.Lock()
	now := c.clock.Now()
	today := storage.DateKey(now, c.loc)
	c.loadDay(ctx, today)

	snap, err := c.store.Countdown().GetSnapshot(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		c.logger.Error().Err(err).Msg("Failed to load countdown snapshot, starting idle")
	default:
		c.engine.Restore(*snap, now)
		if snap.Date == today {
			c.credited = max(snap.CreditedMinutes, 0)
		}
	}

	unlocks, err := c.store.Unlocks().ListUnlocks(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to load temporary unlocks")
	}
	for _, u := range unlocks {
		if u.IsActive(now) {
			c.unlocks[u.AppToken] = u
		}
	}

	events := c.maybeStart(now)
	events = append(events, c.engine.Tick(now)...)
	c.finish(ctx, now)

	c.logger.Info().
		Str("date", today).
		Str("state", string(c.engine.State())).
		Int64("remaining_seconds", c.engine.Remaining(now)).
		Int64("total_minutes", c.agg.Breakdown(today).TotalMinutes).
		Int("temporary_unlocks", len(c.unlocks)).
		Msg("Coordinator restored")
	c.mu.Unlock()

	c.publish(events)
}

// Subscribe registers an event handler and returns a function that removes it.
func (c *Coordinator) Subscribe(h Handler) func() {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = h
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

// ReportEarnedBudget replaces today's earned minutes. Only growth beyond
// what was already credited reaches a running countdown. Once the budget is
// exhausted the report is kept for display only.
func (c *Coordinator) ReportEarnedBudget(ctx context.Context, plan, sleep, exercise int64) Breakdown {
	c.mu.Lock()
	now := c.clock.Now()
	c.rollover(ctx, now)

	b := c.agg.Report(c.date, plan, sleep, exercise)
	events := c.applyBudget(ctx, now, b)
	c.finish(ctx, now)
	c.mu.Unlock()

	c.publish(events)
	return b
}

// ReportComponent replaces one of today's budget sources.
func (c *Coordinator) ReportComponent(ctx context.Context, source Source, minutes int64) (Breakdown, error) {
	c.mu.Lock()
	now := c.clock.Now()
	c.rollover(ctx, now)

	b, err := c.agg.Set(c.date, source, minutes)
	if err != nil {
		c.mu.Unlock()
		return b, err
	}
	events := c.applyBudget(ctx, now, b)
	c.finish(ctx, now)
	c.mu.Unlock()

	c.publish(events)
	return b, nil
}

// RecordUsage adds elapsed seconds of use for an app and deducts them from
// the countdown.
func (c *Coordinator) RecordUsage(ctx context.Context, ruleKey string, elapsedSeconds int64) {
	if elapsedSeconds <= 0 {
		return
	}

	c.mu.Lock()
	now := c.clock.Now()
	c.rollover(ctx, now)

	c.ledger.Record(ctx, ruleKey, elapsedSeconds, c.date)
	events := c.engine.DeductTime(now, elapsedSeconds)
	c.finish(ctx, now)
	c.mu.Unlock()

	c.publish(events)
}

// SyncTelemetry feeds a measured usage delta into the ledger.
func (c *Coordinator) SyncTelemetry(ctx context.Context, ruleKey string, deltaSeconds int64) {
	c.RecordUsage(ctx, ruleKey, deltaSeconds)
}

// CancelRestrictionWithPenalty lifts an app's restriction for the rest of
// the day at the cost of the configured penalty. When less than the penalty
// remains nothing happens and ErrInsufficientBudget is returned.
func (c *Coordinator) CancelRestrictionWithPenalty(ctx context.Context, ruleKey string) error {
	c.mu.Lock()
	now := c.clock.Now()
	c.rollover(ctx, now)

	rule, ok := c.rules.Get(ruleKey)
	if !ok || !rule.Enabled {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchRule, ruleKey)
	}

	remaining := c.engine.Remaining(now)
	if c.engine.HasExhaustedForToday(now) || remaining < c.penalty {
		c.mu.Unlock()
		metrics.PenaltyCancellations.WithLabelValues("refused").Inc()
		c.logger.Info().
			Str("rule_key", ruleKey).
			Int64("remaining_seconds", remaining).
			Int64("penalty_seconds", c.penalty).
			Msg("Penalty cancellation refused")
		return fmt.Errorf("%w: %d seconds remaining, %d required", ErrInsufficientBudget, remaining, c.penalty)
	}

	c.lift(ctx, rule.AppToken)
	events := c.engine.DeductTime(now, c.penalty)

	override := storage.PenaltyOverride{
		Date:        c.date,
		AppToken:    ruleKey,
		GrantedAt:   now,
		CostMinutes: c.penalty / 60,
	}
	c.overrides[ruleKey] = override
	if err := c.store.Unlocks().PutOverride(ctx, override); err != nil {
		c.logger.Error().Err(err).Str("rule_key", ruleKey).Msg("Failed to persist penalty override")
	}

	metrics.PenaltyCancellations.WithLabelValues("granted").Inc()
	c.logger.Info().
		Str("rule_key", ruleKey).
		Int64("penalty_seconds", c.penalty).
		Int64("remaining_seconds", c.engine.Remaining(now)).
		Msg("Restriction cancelled with penalty")

	c.finish(ctx, now)
	c.mu.Unlock()

	c.publish(events)
	return nil
}

// TemporaryUnlock lifts an app's restriction until now+duration without
// touching the shared pool.
func (c *Coordinator) TemporaryUnlock(ctx context.Context, ruleKey string, duration time.Duration) (storage.TemporaryUnlock, error) {
	if duration <= 0 {
		return storage.TemporaryUnlock{}, fmt.Errorf("unlock duration must be positive, got %s", duration)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	c.rollover(ctx, now)

	rule, ok := c.rules.Get(ruleKey)
	if !ok || !rule.Enabled {
		return storage.TemporaryUnlock{}, fmt.Errorf("%w: %s", ErrNoSuchRule, ruleKey)
	}

	grant := storage.TemporaryUnlock{
		ID:        "unlock_" + uuid.New().String(),
		AppToken:  ruleKey,
		GrantedAt: now,
		ExpiresAt: now.Add(duration),
	}

	c.lift(ctx, rule.AppToken)
	if rule.AppToken != "" {
		if err := c.enforcer.ScheduleRestrictionAt(ctx, rule.AppToken, grant.ExpiresAt); err != nil {
			c.enforcementFailed(err, "schedule", rule.AppToken)
		}
	}

	c.unlocks[ruleKey] = grant
	if err := c.store.Unlocks().PutUnlock(ctx, grant); err != nil {
		c.logger.Error().Err(err).Str("rule_key", ruleKey).Msg("Failed to persist temporary unlock")
	}

	metrics.TemporaryUnlocks.Inc()
	c.logger.Info().
		Str("rule_key", ruleKey).
		Time("expires_at", grant.ExpiresAt).
		Msg("Temporary unlock granted")

	c.finish(ctx, now)
	return grant, nil
}

// GetUnlockStatus returns the current status of one app.
func (c *Coordinator) GetUnlockStatus(ctx context.Context, ruleKey string) (UnlockStatus, error) {
	for _, s := range c.ListUnlockStatuses(ctx) {
		if s.RuleKey == ruleKey {
			return s, nil
		}
	}
	return UnlockStatus{}, fmt.Errorf("%w: %s", ErrNoSuchRule, ruleKey)
}

// ListUnlockStatuses returns the status of every enabled app in rule order.
func (c *Coordinator) ListUnlockStatuses(ctx context.Context) []UnlockStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	c.rollover(ctx, now)
	return c.statuses(ctx, now)
}

// GetTodaySelfDisciplineMinutes returns the minutes still available today,
// or zero once the budget has run out.
func (c *Coordinator) GetTodaySelfDisciplineMinutes(ctx context.Context) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	c.rollover(ctx, now)

	if c.engine.HasExhaustedForToday(now) {
		return 0
	}
	switch c.engine.State() {
	case countdown.StateRunning, countdown.StateStopped:
		return c.engine.Remaining(now) / 60
	default:
		return c.agg.Breakdown(c.date).TotalMinutes
	}
}

// GetBreakdown returns today's earned budget by source.
func (c *Coordinator) GetBreakdown(ctx context.Context) Breakdown {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover(ctx, c.clock.Now())
	return c.agg.Breakdown(c.date)
}

// CountdownState returns the countdown state and remaining seconds.
func (c *Coordinator) CountdownState(ctx context.Context) (countdown.State, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	c.rollover(ctx, now)
	if c.engine.HasExhaustedForToday(now) {
		return countdown.StateExhausted, 0
	}
	return c.engine.State(), c.engine.Remaining(now)
}

// OnRulesChanged starts the countdown if budget is waiting for a first
// enabled rule and re-evaluates every restriction.
func (c *Coordinator) OnRulesChanged(ctx context.Context) {
	c.mu.Lock()
	now := c.clock.Now()
	c.rollover(ctx, now)
	events := c.maybeStart(now)
	c.finish(ctx, now)
	c.mu.Unlock()

	c.publish(events)
}

// Pause stops the countdown. It reports whether the state changed.
func (c *Coordinator) Pause(ctx context.Context) bool {
	c.mu.Lock()
	now := c.clock.Now()
	c.rollover(ctx, now)

	wasRunning := c.engine.State() == countdown.StateRunning
	events := c.engine.Stop(now)
	paused := wasRunning && c.engine.State() == countdown.StateStopped
	c.finish(ctx, now)
	c.mu.Unlock()

	if paused {
		c.logger.Info().Msg("Countdown paused")
	}
	c.publish(events)
	return paused
}

// Resume restarts a paused countdown. It reports whether the state changed.
func (c *Coordinator) Resume(ctx context.Context) bool {
	c.mu.Lock()
	now := c.clock.Now()
	c.rollover(ctx, now)

	resumed := c.engine.Resume(now)
	if resumed {
		c.finish(ctx, now)
		c.logger.Info().Msg("Countdown resumed")
	}
	c.mu.Unlock()
	return resumed
}

// Tick advances the countdown and expires temporary unlocks.
func (c *Coordinator) Tick(ctx context.Context) {
	c.mu.Lock()
	now := c.clock.Now()
	rolled := c.rollover(ctx, now)
	events := c.engine.Tick(now)
	reaped := c.reapUnlocks(ctx, now)

	if rolled || reaped || len(events) > 0 {
		c.finish(ctx, now)
	} else {
		c.updateMetrics(now)
	}
	c.mu.Unlock()

	c.publish(events)
}

// Run ticks until ctx is cancelled and persists the countdown on the way out.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", c.interval).Msg("Countdown loop started")
	for {
		select {
		case <-ticker.C:
			c.Tick(ctx)
		case <-ctx.Done():
			c.Persist(context.Background())
			c.logger.Info().Msg("Countdown loop stopped")
			return
		}
	}
}

// Persist writes the countdown snapshot.
func (c *Coordinator) Persist(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistSnapshot(ctx)
}

// rollover moves the coordinator to a new calendar day. It reports whether
// the day changed. A clock that moved back to an earlier day is ignored.
func (c *Coordinator) rollover(ctx context.Context, now time.Time) bool {
	today := storage.DateKey(now, c.loc)
	if today == c.date || (c.date != "" && today < c.date) {
		return false
	}
	if c.date != "" {
		c.logger.Info().Str("from", c.date).Str("to", today).Msg("Day rolled over")
	}
	c.loadDay(ctx, today)
	c.engine.Tick(now)
	return true
}

// loadDay resets the per-day state and loads what storage holds for date.
func (c *Coordinator) loadDay(ctx context.Context, date string) {
	c.date = date
	c.credited = 0
	c.agg = NewAggregator()
	c.overrides = make(map[string]storage.PenaltyOverride)

	state, err := c.store.Budget().GetBudgetState(ctx, date)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		c.logger.Error().Err(err).Str("date", date).Msg("Failed to load budget state")
	default:
		c.agg.Restore(*state)
	}

	overrides, err := c.store.Unlocks().ListOverrides(ctx, date)
	if err != nil {
		c.logger.Error().Err(err).Str("date", date).Msg("Failed to load penalty overrides")
	}
	for _, o := range overrides {
		c.overrides[o.AppToken] = o
	}

	c.ledger.Forget(date)
	c.ledger.Load(ctx, date)
}

// applyBudget turns a new breakdown into countdown time and persists it.
func (c *Coordinator) applyBudget(ctx context.Context, now time.Time, b Breakdown) []countdown.Event {
	if err := c.store.Budget().PutBudgetState(ctx, c.agg.State(now)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to persist budget state")
	}

	if c.engine.HasExhaustedForToday(now) {
		c.logger.Info().
			Int64("total_minutes", b.TotalMinutes).
			Msg("Budget reported after exhaustion, recorded for display only")
		return nil
	}

	switch c.engine.State() {
	case countdown.StateRunning, countdown.StateStopped:
		delta := b.TotalMinutes - c.credited
		if delta <= 0 {
			c.logger.Debug().
				Int64("total_minutes", b.TotalMinutes).
				Int64("credited_minutes", c.credited).
				Msg("No new budget to credit")
			return nil
		}
		events := c.engine.AddTime(now, delta)
		for _, ev := range events {
			if ev.Type == countdown.EventBudgetAdded {
				c.credited = b.TotalMinutes
				c.logger.Info().Int64("delta_minutes", delta).Int64("total_minutes", b.TotalMinutes).Msg("Budget added")
			}
		}
		return events
	default:
		return c.maybeStart(now)
	}
}

// maybeStart seeds an idle countdown once there is budget and an enabled rule.
func (c *Coordinator) maybeStart(now time.Time) []countdown.Event {
	total := c.agg.Breakdown(c.date).TotalMinutes
	if c.engine.State() != countdown.StateIdle || total <= 0 || !c.rules.HasEnabledRules() {
		return nil
	}
	if c.engine.Start(now, total) {
		c.credited = total
		c.logger.Info().Int64("total_minutes", total).Msg("Countdown started")
	}
	return nil
}

func (c *Coordinator) reapUnlocks(ctx context.Context, now time.Time) bool {
	reaped := false
	for key, u := range c.unlocks {
		if u.IsActive(now) {
			continue
		}
		delete(c.unlocks, key)
		reaped = true
		// The scheduled restriction may already have fired; resend the desired state
		if rule, ok := c.rules.Get(key); ok && rule.AppToken != "" {
			delete(c.restricted, rule.AppToken)
		}
		if err := c.store.Unlocks().DeleteUnlock(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			c.logger.Error().Err(err).Str("rule_key", key).Msg("Failed to delete expired temporary unlock")
		}
		c.logger.Info().Str("rule_key", key).Msg("Temporary unlock expired")
	}
	return reaped
}

// finish persists the snapshot, refreshes metrics and pushes restrictions.
func (c *Coordinator) finish(ctx context.Context, now time.Time) {
	c.persistSnapshot(ctx)
	c.updateMetrics(now)
	c.syncEnforcement(ctx, now)
}

func (c *Coordinator) persistSnapshot(ctx context.Context) {
	snap := c.engine.Snapshot()
	snap.CreditedMinutes = c.credited
	if err := c.store.Countdown().PutSnapshot(ctx, snap); err != nil {
		c.logger.Error().Err(err).Msg("Failed to persist countdown snapshot")
	}
}

func (c *Coordinator) updateMetrics(now time.Time) {
	metrics.BudgetTotalMinutes.Set(float64(c.agg.Breakdown(c.date).TotalMinutes))
	metrics.CountdownRemainingSeconds.Set(float64(c.engine.Remaining(now)))
	if c.engine.HasExhaustedForToday(now) {
		metrics.CountdownExhausted.Set(1)
	} else {
		metrics.CountdownExhausted.Set(0)
	}
}

// statuses recomputes every enabled app's status from scratch.
func (c *Coordinator) statuses(ctx context.Context, now time.Time) []UnlockStatus {
	enabled := c.rules.ListEnabledRules()
	keys := make([]string, len(enabled))
	for i, r := range enabled {
		keys[i] = r.Key()
	}

	total := c.agg.Breakdown(c.date).TotalMinutes * 60
	allocs := allocator.Allocate(total, enabled, c.ledger.UsageFor(ctx, keys, c.date))

	exhausted := c.engine.HasExhaustedForToday(now)
	started := c.engine.State() != countdown.StateIdle
	countdownLeft := c.engine.Remaining(now)

	out := make([]UnlockStatus, len(allocs))
	for i, a := range allocs {
		s := UnlockStatus{
			RuleKey:              keys[i],
			AppToken:             a.AppToken,
			DisplayName:          a.DisplayName,
			IsUnlocked:           a.IsUnlocked,
			RemainingSeconds:     a.RemainingSeconds,
			TotalAllottedSeconds: a.TotalAllottedSeconds,
			UsedSeconds:          a.UsedSeconds,
		}
		if exhausted {
			s.IsUnlocked = false
			s.RemainingSeconds = 0
		} else if started {
			s.RemainingSeconds = min(s.RemainingSeconds, countdownLeft)
			s.IsUnlocked = s.IsUnlocked && s.RemainingSeconds > 0
		}
		if u, ok := c.unlocks[keys[i]]; ok && u.IsActive(now) {
			s.TemporarilyUnlocked = true
			s.TemporaryUnlockExpiresAt = u.ExpiresAt
		}
		_, s.PenaltyCancelled = c.overrides[keys[i]]

		restrict, err := c.policy.Decide(ctx, policy.Facts{
			AppToken:            keys[i],
			PoolUnlocked:        s.IsUnlocked,
			Exhausted:           exhausted,
			TemporarilyUnlocked: s.TemporarilyUnlocked,
			PenaltyCancelled:    s.PenaltyCancelled,
			RemainingSeconds:    s.RemainingSeconds,
			UsedSeconds:         s.UsedSeconds,
		})
		if err != nil {
			c.logger.Error().Err(err).Str("rule_key", keys[i]).Msg("Policy evaluation failed, restricting")
		}
		s.Restricted = restrict
		out[i] = s
	}
	return out
}

// syncEnforcement sends only the restrictions whose desired state changed.
// Failures are logged and counted; local state is never rolled back.
func (c *Coordinator) syncEnforcement(ctx context.Context, now time.Time) {
	seen := make(map[string]bool)
	for _, s := range c.statuses(ctx, now) {
		if s.AppToken == "" {
			continue
		}
		seen[s.AppToken] = true
		if prev, ok := c.restricted[s.AppToken]; ok && prev == s.Restricted {
			continue
		}
		if s.Restricted {
			c.apply(ctx, s.AppToken)
		} else {
			c.lift(ctx, s.AppToken)
		}
	}

	// Apps whose rule was removed or disabled are no longer managed
	for token := range c.restricted {
		if !seen[token] {
			if c.restricted[token] {
				if err := c.enforcer.LiftRestriction(ctx, token); err != nil {
					c.enforcementFailed(err, "lift", token)
				}
			}
			delete(c.restricted, token)
		}
	}
}

func (c *Coordinator) apply(ctx context.Context, appToken string) {
	if appToken == "" {
		return
	}
	if err := c.enforcer.ApplyRestriction(ctx, appToken); err != nil {
		c.enforcementFailed(err, "apply", appToken)
	}
	c.restricted[appToken] = true
}

func (c *Coordinator) lift(ctx context.Context, appToken string) {
	if appToken == "" {
		return
	}
	if err := c.enforcer.LiftRestriction(ctx, appToken); err != nil {
		c.enforcementFailed(err, "lift", appToken)
	}
	c.restricted[appToken] = false
}

func (c *Coordinator) enforcementFailed(err error, op, appToken string) {
	metrics.EnforcementErrors.WithLabelValues(op).Inc()
	c.logger.Error().Err(err).Str("op", op).Str("app_token", appToken).Msg("Restriction enforcer call failed")
}

func (c *Coordinator) publish(events []countdown.Event) {
	if len(events) == 0 {
		return
	}

	c.subsMu.RLock()
	handlers := make([]Handler, 0, len(c.subs))
	for _, h := range c.subs {
		handlers = append(handlers, h)
	}
	c.subsMu.RUnlock()

	for _, ev := range events {
		metrics.EventsTotal.WithLabelValues(string(ev.Type)).Inc()
		switch ev.Type {
		case countdown.EventTimeExpired:
			c.logger.Warn().Msg("Self-discipline time expired")
		case countdown.EventTimeWarning:
			c.logger.Info().Int64("remaining_minutes", ev.RemainingMinutes).Msg("Self-discipline time running low")
		}
		for _, h := range handlers {
			h(ev)
		}
	}
}
