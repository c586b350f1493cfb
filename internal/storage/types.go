package storage

import (
	"strings"
	"time"
)

// AppRule restricts one application and caps its daily draw from the shared pool.
type AppRule struct {
	ID              string    `json:"id"`
	AppToken        string    `json:"app_token"`
	DisplayName     string    `json:"display_name"`
	BundleID        string    `json:"bundle_id"`
	MaxDailySeconds int64     `json:"max_daily_seconds"`
	Enabled         bool      `json:"enabled"`
	AddedAt         time.Time `json:"added_at"`
	Seq             uint64    `json:"seq"`
}

// Key returns the identity used for deduplication: the app token, or the
// display name when no token is known.
func (r AppRule) Key() string {
	return RuleKey(r.AppToken, r.DisplayName)
}

// nameKeyPrefix marks rule keys built from a display name.
const nameKeyPrefix = "name:"

// RuleKey builds a rule identity key.
func RuleKey(appToken, displayName string) string {
	if appToken != "" {
		return appToken
	}
	return nameKeyPrefix + displayName
}

// IsNameKey reports whether key was built from a display name rather than an
// app token.
func IsNameKey(key string) bool {
	return strings.HasPrefix(key, nameKeyPrefix)
}

// DailyUsage aggregates usage per day and app.
type DailyUsage struct {
	Date         string `json:"date"`
	AppToken     string `json:"app_token"`
	TotalSeconds int64  `json:"total_seconds"`
}

// BudgetState is the earned budget for one calendar day.
type BudgetState struct {
	Date            string    `json:"date"`
	PlanMinutes     int64     `json:"plan_minutes"`
	SleepMinutes    int64     `json:"sleep_minutes"`
	ExerciseMinutes int64     `json:"exercise_minutes"`
	TotalMinutes    int64     `json:"total_minutes"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CountdownSnapshot allows the countdown to resume after a restart.
type CountdownSnapshot struct {
	Date             string    `json:"date"`
	State            string    `json:"state"`
	InitialSeconds   int64     `json:"initial_seconds"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	AnchorAt         time.Time `json:"anchor_at"`
	ExhaustedToday   bool      `json:"exhausted_today"`
	CreditedMinutes  int64     `json:"credited_minutes"`
	FiredWarnings    []int64   `json:"fired_warnings,omitempty"`
}

// TemporaryUnlock is a time-boxed override that does not draw from the pool.
type TemporaryUnlock struct {
	ID        string    `json:"id"`
	AppToken  string    `json:"app_token"`
	GrantedAt time.Time `json:"granted_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsActive reports whether the unlock is still in effect at now.
func (u TemporaryUnlock) IsActive(now time.Time) bool {
	return now.Before(u.ExpiresAt)
}

// RemainingTime returns how long the unlock stays in effect.
func (u TemporaryUnlock) RemainingTime(now time.Time) time.Duration {
	if !u.IsActive(now) {
		return 0
	}
	return u.ExpiresAt.Sub(now)
}

// PenaltyOverride records an app whose restriction was cancelled for the rest
// of the day in exchange for budget.
type PenaltyOverride struct {
	Date        string    `json:"date"`
	AppToken    string    `json:"app_token"`
	GrantedAt   time.Time `json:"granted_at"`
	CostMinutes int64     `json:"cost_minutes"`
}
