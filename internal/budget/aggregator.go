package budget

import (
	"fmt"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/storage"
)

// Source is one way of earning budget.
type Source string

const (
	SourcePlan     Source = "plan"
	SourceSleep    Source = "sleep"
	SourceExercise Source = "exercise"
)

// ParseSource converts a name into a Source.
func ParseSource(name string) (Source, error) {
	switch s := Source(name); s {
	case SourcePlan, SourceSleep, SourceExercise:
		return s, nil
	default:
		return "", fmt.Errorf("unknown budget source %q (must be plan, sleep or exercise)", name)
	}
}

// Breakdown is the earned budget for one day by source.
type Breakdown struct {
	Date            string
	PlanMinutes     int64
	SleepMinutes    int64
	ExerciseMinutes int64
	TotalMinutes    int64
}

// Aggregator sums the budget sources for the current day. It is owned by the
// coordinator and not safe for concurrent use.
type Aggregator struct {
	date     string
	plan     int64
	sleep    int64
	exercise int64
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Report replaces all three components for date.
func (a *Aggregator) Report(date string, plan, sleep, exercise int64) Breakdown {
	a.roll(date)
	a.plan = max(plan, 0)
	a.sleep = max(sleep, 0)
	a.exercise = max(exercise, 0)
	return a.Breakdown(date)
}

// Set replaces one component for date.
func (a *Aggregator) Set(date string, source Source, minutes int64) (Breakdown, error) {
	a.roll(date)
	switch source {
	case SourcePlan:
		a.plan = max(minutes, 0)
	case SourceSleep:
		a.sleep = max(minutes, 0)
	case SourceExercise:
		a.exercise = max(minutes, 0)
	default:
		return a.Breakdown(date), fmt.Errorf("unknown budget source %q", source)
	}
	return a.Breakdown(date), nil
}

// Breakdown returns the budget for date. Any other day than the one held is
// empty.
func (a *Aggregator) Breakdown(date string) Breakdown {
	if date != a.date {
		return Breakdown{Date: date}
	}
	return Breakdown{
		Date:            date,
		PlanMinutes:     a.plan,
		SleepMinutes:    a.sleep,
		ExerciseMinutes: a.exercise,
		TotalMinutes:    a.plan + a.sleep + a.exercise,
	}
}

// State returns the persisted form of the held day.
func (a *Aggregator) State(now time.Time) storage.BudgetState {
	b := a.Breakdown(a.date)
	return storage.BudgetState{
		Date:            b.Date,
		PlanMinutes:     b.PlanMinutes,
		SleepMinutes:    b.SleepMinutes,
		ExerciseMinutes: b.ExerciseMinutes,
		TotalMinutes:    b.TotalMinutes,
		UpdatedAt:       now,
	}
}

// Restore loads a persisted day.
func (a *Aggregator) Restore(state storage.BudgetState) {
	a.date = state.Date
	a.plan = max(state.PlanMinutes, 0)
	a.sleep = max(state.SleepMinutes, 0)
	a.exercise = max(state.ExerciseMinutes, 0)
}

func (a *Aggregator) roll(date string) {
	if date == a.date {
		return
	}
	a.date = date
	a.plan, a.sleep, a.exercise = 0, 0, 0
}
