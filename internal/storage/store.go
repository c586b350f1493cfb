package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Rules() RuleStore
	Usage() UsageStore
	Budget() BudgetStore
	Countdown() CountdownStore
	Unlocks() UnlockStore
}

// RuleStore persists the list of app unlock rules.
type RuleStore interface {
	List(ctx context.Context) ([]AppRule, error)
	Put(ctx context.Context, rule AppRule) error
	Delete(ctx context.Context, id string) error
	ReplaceAll(ctx context.Context, rules []AppRule) error
}

// UsageStore manages per-app daily usage records.
type UsageStore interface {
	GetDailyUsage(ctx context.Context, date, appToken string) (*DailyUsage, error)
	ListDailyUsage(ctx context.Context, date string) ([]DailyUsage, error)
	IncrementDailyUsage(ctx context.Context, date, appToken string, seconds int64) error
	DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error)
}

// BudgetStore manages the earned budget per day.
type BudgetStore interface {
	GetBudgetState(ctx context.Context, date string) (*BudgetState, error)
	PutBudgetState(ctx context.Context, state BudgetState) error
}

// CountdownStore holds the single countdown snapshot.
type CountdownStore interface {
	GetSnapshot(ctx context.Context) (*CountdownSnapshot, error)
	PutSnapshot(ctx context.Context, snapshot CountdownSnapshot) error
}

// UnlockStore manages temporary unlock grants and penalty overrides.
type UnlockStore interface {
	PutUnlock(ctx context.Context, unlock TemporaryUnlock) error
	ListUnlocks(ctx context.Context) ([]TemporaryUnlock, error)
	DeleteUnlock(ctx context.Context, appToken string) error
	DeleteExpiredUnlocks(ctx context.Context, now time.Time) (int, error)
	PutOverride(ctx context.Context, override PenaltyOverride) error
	ListOverrides(ctx context.Context, date string) ([]PenaltyOverride, error)
	DeleteOverridesBefore(ctx context.Context, cutoffDate string) (int, error)
}
