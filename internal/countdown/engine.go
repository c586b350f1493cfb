// Package countdown implements the daily budget countdown.
//
// The engine is a plain state machine: every mutating method takes the
// current wall-clock time and returns the events it raised. It is not safe
// for concurrent use; a single owner serializes access.
package countdown

import (
	"sort"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/storage"
)

// State is the countdown lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateStopped   State = "stopped"
	StateExhausted State = "exhausted"
)

// EventType identifies a countdown event.
type EventType string

const (
	EventTimeExpired EventType = "time_expired"
	EventTimeWarning EventType = "time_warning"
	EventBudgetAdded EventType = "budget_added"
)

// Event is raised by a countdown transition.
type Event struct {
	Type             EventType
	At               time.Time
	RemainingMinutes int64 // EventTimeWarning
	DeltaMinutes     int64 // EventBudgetAdded
}

// Engine tracks the remaining budget for one calendar day.
type Engine struct {
	loc        *time.Location
	thresholds []int64 // seconds, descending

	state     State
	date      string
	initial   int64
	remaining int64 // remaining at anchor
	anchor    time.Time
	exhausted bool
	fired     map[int64]bool
}

// NewEngine creates an idle engine. Thresholds are the remaining durations
// at which a warning is raised.
func NewEngine(thresholds []time.Duration, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	secs := make([]int64, 0, len(thresholds))
	seen := make(map[int64]bool)
	for _, t := range thresholds {
		s := int64(t / time.Second)
		if s <= 0 || seen[s] {
			continue
		}
		seen[s] = true
		secs = append(secs, s)
	}
	sort.Slice(secs, func(i, j int) bool { return secs[i] > secs[j] })

	return &Engine{
		loc:        loc,
		thresholds: secs,
		state:      StateIdle,
		fired:      make(map[int64]bool),
	}
}

// State returns the current state without advancing time.
func (e *Engine) State() State {
	return e.state
}

// Date returns the calendar day the engine state belongs to.
func (e *Engine) Date() string {
	return e.date
}

// Initial returns the budget the countdown was seeded with, including top-ups.
func (e *Engine) Initial() int64 {
	return e.initial
}

// Remaining returns the remaining seconds at now without mutating the engine.
func (e *Engine) Remaining(now time.Time) int64 {
	if e.isNewDay(now) {
		return 0
	}
	if e.state != StateRunning {
		return e.remaining
	}
	remaining := e.remaining - elapsedSeconds(e.anchor, now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasExhaustedForToday reports whether the budget ran out on now's calendar day.
func (e *Engine) HasExhaustedForToday(now time.Time) bool {
	if e.isNewDay(now) {
		return false
	}
	if e.exhausted {
		return true
	}
	return e.state == StateRunning && e.Remaining(now) == 0
}

// Start seeds the countdown. Only valid from Idle with a positive total.
func (e *Engine) Start(now time.Time, totalMinutes int64) bool {
	e.rollover(now)
	if e.state != StateIdle || e.exhausted || totalMinutes <= 0 {
		return false
	}

	e.initial = totalMinutes * 60
	e.remaining = e.initial
	e.anchor = now
	e.state = StateRunning
	e.fired = make(map[int64]bool)
	// Thresholds already behind the starting point count as passed
	for _, t := range e.thresholds {
		if e.remaining <= t {
			e.fired[t] = true
		}
	}
	return true
}

// Tick advances the countdown to now.
func (e *Engine) Tick(now time.Time) []Event {
	e.rollover(now)
	if e.state != StateRunning {
		return nil
	}
	return e.advanceEvents(now)
}

// AddTime tops the countdown up by deltaMinutes. Both the initial and the
// remaining budget grow; nothing is replaced.
func (e *Engine) AddTime(now time.Time, deltaMinutes int64) []Event {
	e.rollover(now)
	if deltaMinutes <= 0 || e.exhausted {
		return nil
	}
	if e.state != StateRunning && e.state != StateStopped {
		return nil
	}

	events := e.advanceEvents(now)
	if e.exhausted {
		return events
	}

	delta := deltaMinutes * 60
	e.initial += delta
	e.remaining += delta
	e.rearm()
	return append(events, Event{Type: EventBudgetAdded, At: now, DeltaMinutes: deltaMinutes})
}

// DeductTime removes seconds from the remaining budget, exhausting it when
// it reaches zero.
func (e *Engine) DeductTime(now time.Time, seconds int64) []Event {
	e.rollover(now)
	if seconds <= 0 {
		return nil
	}
	if e.state != StateRunning && e.state != StateStopped {
		return nil
	}

	before := e.remaining
	e.advance(now)
	e.remaining -= seconds
	return e.afterChange(now, before)
}

// Stop pauses a running countdown. Repeated calls are no-ops and exhaustion
// is never cleared.
func (e *Engine) Stop(now time.Time) []Event {
	e.rollover(now)
	if e.state != StateRunning {
		return nil
	}
	events := e.advanceEvents(now)
	if e.state == StateRunning {
		e.state = StateStopped
	}
	return events
}

// Resume restarts a stopped countdown.
func (e *Engine) Resume(now time.Time) bool {
	e.rollover(now)
	if e.state != StateStopped {
		return false
	}
	e.state = StateRunning
	e.anchor = now
	return true
}

// Snapshot captures the engine for persistence.
func (e *Engine) Snapshot() storage.CountdownSnapshot {
	fired := make([]int64, 0, len(e.fired))
	for _, t := range e.thresholds {
		if e.fired[t] {
			fired = append(fired, t)
		}
	}
	return storage.CountdownSnapshot{
		Date:             e.date,
		State:            string(e.state),
		InitialSeconds:   e.initial,
		RemainingSeconds: e.remaining,
		AnchorAt:         e.anchor,
		ExhaustedToday:   e.exhausted,
		FiredWarnings:    fired,
	}
}

// Restore loads a snapshot. Snapshots from an earlier day leave the engine
// idle. Elapsed wall-clock time since the snapshot is applied on the next Tick.
func (e *Engine) Restore(snap storage.CountdownSnapshot, now time.Time) {
	e.reset(storage.DateKey(now, e.loc))
	if snap.Date != e.date {
		return
	}

	e.state = State(snap.State)
	switch e.state {
	case StateIdle, StateRunning, StateStopped, StateExhausted:
	default:
		e.state = StateIdle
	}
	e.initial = max(snap.InitialSeconds, 0)
	e.remaining = min(max(snap.RemainingSeconds, 0), e.initial)
	e.anchor = snap.AnchorAt
	e.exhausted = snap.ExhaustedToday || e.state == StateExhausted
	if e.exhausted {
		e.state = StateExhausted
		e.remaining = 0
	}
	if e.anchor.IsZero() || e.anchor.After(now) {
		e.anchor = now
	}
	for _, t := range snap.FiredWarnings {
		e.fired[t] = true
	}
}

func (e *Engine) isNewDay(now time.Time) bool {
	return e.date != "" && storage.DateKey(now, e.loc) > e.date
}

// rollover resets the engine when now falls on a later calendar day.
func (e *Engine) rollover(now time.Time) {
	today := storage.DateKey(now, e.loc)
	if e.date == "" {
		e.date = today
		return
	}
	if today > e.date {
		e.reset(today)
	}
}

func (e *Engine) reset(date string) {
	e.state = StateIdle
	e.date = date
	e.initial = 0
	e.remaining = 0
	e.anchor = time.Time{}
	e.exhausted = false
	e.fired = make(map[int64]bool)
}

// advance consumes wall-clock time elapsed since the anchor.
func (e *Engine) advance(now time.Time) {
	if e.state != StateRunning {
		return
	}
	elapsed := elapsedSeconds(e.anchor, now)
	if elapsed == 0 {
		if now.Before(e.anchor) {
			e.anchor = now
		}
		return
	}
	e.remaining -= elapsed
	e.anchor = e.anchor.Add(time.Duration(elapsed) * time.Second)
}

// advanceEvents is advance followed by the usual post-change checks.
func (e *Engine) advanceEvents(now time.Time) []Event {
	before := e.remaining
	e.advance(now)
	return e.afterChange(now, before)
}

// afterChange clamps remaining and raises exhaustion and warning events.
func (e *Engine) afterChange(now time.Time, before int64) []Event {
	if e.state == StateExhausted {
		return nil
	}
	if e.remaining <= 0 {
		e.remaining = 0
		e.state = StateExhausted
		e.exhausted = true
		for _, t := range e.thresholds {
			e.fired[t] = true
		}
		return []Event{{Type: EventTimeExpired, At: now}}
	}

	// Only the most urgent threshold crossed by this change is announced
	var crossed int64
	for _, t := range e.thresholds {
		if before > t && e.remaining <= t && !e.fired[t] {
			e.fired[t] = true
			crossed = t
		}
	}
	if crossed == 0 {
		return nil
	}
	return []Event{{
		Type:             EventTimeWarning,
		At:               now,
		RemainingMinutes: (e.remaining + 59) / 60,
	}}
}

// rearm allows thresholds to fire again once remaining climbs above them.
func (e *Engine) rearm() {
	for _, t := range e.thresholds {
		if e.remaining > t {
			e.fired[t] = false
		}
	}
}

// elapsedSeconds returns whole seconds from anchor to now. A clock that moved
// backwards yields zero.
func elapsedSeconds(anchor, now time.Time) int64 {
	if anchor.IsZero() || !now.After(anchor) {
		return 0
	}
	return int64(now.Sub(anchor) / time.Second)
}
