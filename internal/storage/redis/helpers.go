package redis

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/storage"
)

// keyspace builds every key under one prefix
type keyspace struct {
	prefix string
}

func (k keyspace) rule(id string) string {
	return fmt.Sprintf("%s:rule:%s", k.prefix, id)
}

func (k keyspace) rules() string {
	return k.prefix + ":rules"
}

func (k keyspace) usage(date, app string) string {
	return fmt.Sprintf("%s:usage:daily:%s:%s", k.prefix, date, app)
}

func (k keyspace) usageIndex(date string) string {
	return fmt.Sprintf("%s:usage:daily:index:%s", k.prefix, date)
}

func (k keyspace) usageDates() string {
	return k.prefix + ":usage:daily:dates"
}

func (k keyspace) budget(date string) string {
	return fmt.Sprintf("%s:budget:%s", k.prefix, date)
}

func (k keyspace) countdown() string {
	return k.prefix + ":countdown"
}

func (k keyspace) unlockPrefix() string {
	return k.prefix + ":unlock:"
}

func (k keyspace) unlock(app string) string {
	return k.unlockPrefix() + app
}

func (k keyspace) unlocks() string {
	return k.prefix + ":unlocks"
}

func (k keyspace) override(date, app string) string {
	return fmt.Sprintf("%s:override:%s:%s", k.prefix, date, app)
}

func (k keyspace) overrideIndex(date string) string {
	return fmt.Sprintf("%s:overrides:%s", k.prefix, date)
}

func (k keyspace) overrideDates() string {
	return k.prefix + ":overrides:dates"
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func parseInt(data map[string]string, field string) (int64, error) {
	value, ok := data[field]
	if !ok || value == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return n, nil
}

// parseAppRule converts a Redis hash to AppRule
func parseAppRule(data map[string]string) (*storage.AppRule, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	maxDaily, err := parseInt(data, "max_daily_seconds")
	if err != nil {
		return nil, err
	}

	seq, err := strconv.ParseUint(data["seq"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse seq: %w", err)
	}

	addedAt, err := parseTime(data["added_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse added_at: %w", err)
	}

	return &storage.AppRule{
		ID:              data["id"],
		AppToken:        data["app_token"],
		DisplayName:     data["display_name"],
		BundleID:        data["bundle_id"],
		MaxDailySeconds: maxDaily,
		Enabled:         data["enabled"] == "1",
		AddedAt:         addedAt,
		Seq:             seq,
	}, nil
}

// parseDailyUsage converts a Redis hash to DailyUsage
func parseDailyUsage(data map[string]string) (*storage.DailyUsage, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	totalSeconds, err := strconv.ParseInt(data["total_seconds"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total_seconds: %w", err)
	}

	return &storage.DailyUsage{
		Date:         data["date"],
		AppToken:     data["app_token"],
		TotalSeconds: totalSeconds,
	}, nil
}

// parseBudgetState converts a Redis hash to BudgetState
func parseBudgetState(data map[string]string) (*storage.BudgetState, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	state := &storage.BudgetState{Date: data["date"]}
	var err error
	if state.PlanMinutes, err = parseInt(data, "plan_minutes"); err != nil {
		return nil, err
	}
	if state.SleepMinutes, err = parseInt(data, "sleep_minutes"); err != nil {
		return nil, err
	}
	if state.ExerciseMinutes, err = parseInt(data, "exercise_minutes"); err != nil {
		return nil, err
	}
	if state.TotalMinutes, err = parseInt(data, "total_minutes"); err != nil {
		return nil, err
	}
	if state.UpdatedAt, err = parseTime(data["updated_at"]); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return state, nil
}

// parseCountdownSnapshot converts a Redis hash to CountdownSnapshot
func parseCountdownSnapshot(data map[string]string) (*storage.CountdownSnapshot, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	snap := &storage.CountdownSnapshot{
		Date:           data["date"],
		State:          data["state"],
		ExhaustedToday: data["exhausted_today"] == "1",
	}
	var err error
	if snap.InitialSeconds, err = parseInt(data, "initial_seconds"); err != nil {
		return nil, err
	}
	if snap.RemainingSeconds, err = parseInt(data, "remaining_seconds"); err != nil {
		return nil, err
	}
	if snap.CreditedMinutes, err = parseInt(data, "credited_minutes"); err != nil {
		return nil, err
	}
	if snap.AnchorAt, err = parseTime(data["anchor_at"]); err != nil {
		return nil, fmt.Errorf("failed to parse anchor_at: %w", err)
	}
	if fired := data["fired_warnings"]; fired != "" {
		for _, part := range strings.Split(fired, ",") {
			n, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse fired_warnings: %w", err)
			}
			snap.FiredWarnings = append(snap.FiredWarnings, n)
		}
	}
	return snap, nil
}

func formatFiredWarnings(fired []int64) string {
	parts := make([]string, len(fired))
	for i, n := range fired {
		parts[i] = strconv.FormatInt(n, 10)
	}
	return strings.Join(parts, ",")
}

// parseTemporaryUnlock converts a Redis hash to TemporaryUnlock
func parseTemporaryUnlock(data map[string]string) (*storage.TemporaryUnlock, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	grantedAt, err := parseTime(data["granted_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse granted_at: %w", err)
	}

	expiresAt, err := parseTime(data["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse expires_at: %w", err)
	}

	return &storage.TemporaryUnlock{
		ID:        data["id"],
		AppToken:  data["app_token"],
		GrantedAt: grantedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// parsePenaltyOverride converts a Redis hash to PenaltyOverride
func parsePenaltyOverride(data map[string]string) (*storage.PenaltyOverride, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	grantedAt, err := parseTime(data["granted_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse granted_at: %w", err)
	}

	cost, err := parseInt(data, "cost_minutes")
	if err != nil {
		return nil, err
	}

	return &storage.PenaltyOverride{
		Date:        data["date"],
		AppToken:    data["app_token"],
		GrantedAt:   grantedAt,
		CostMinutes: cost,
	}, nil
}
