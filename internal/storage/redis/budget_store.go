package redis

import (
	"context"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"github.com/redis/go-redis/v9"
)

type budgetStore struct {
	client *redis.Client
	keys   keyspace
}

// GetBudgetState retrieves the earned budget for a date
func (s *budgetStore) GetBudgetState(ctx context.Context, date string) (*storage.BudgetState, error) {
	data, err := s.client.HGetAll(ctx, s.keys.budget(date)).Result()
	if err != nil {
		return nil, err
	}
	return parseBudgetState(data)
}

// PutBudgetState stores the earned budget for a date
func (s *budgetStore) PutBudgetState(ctx context.Context, state storage.BudgetState) error {
	return s.client.HSet(ctx, s.keys.budget(state.Date), map[string]interface{}{
		"date":             state.Date,
		"plan_minutes":     state.PlanMinutes,
		"sleep_minutes":    state.SleepMinutes,
		"exercise_minutes": state.ExerciseMinutes,
		"total_minutes":    state.TotalMinutes,
		"updated_at":       state.UpdatedAt.Format(time.RFC3339Nano),
	}).Err()
}

type countdownStore struct {
	client *redis.Client
	keys   keyspace
}

// GetSnapshot retrieves the stored countdown snapshot
func (s *countdownStore) GetSnapshot(ctx context.Context) (*storage.CountdownSnapshot, error) {
	data, err := s.client.HGetAll(ctx, s.keys.countdown()).Result()
	if err != nil {
		return nil, err
	}
	return parseCountdownSnapshot(data)
}

// PutSnapshot replaces the stored countdown snapshot
func (s *countdownStore) PutSnapshot(ctx context.Context, snap storage.CountdownSnapshot) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.keys.countdown())
		pipe.HSet(ctx, s.keys.countdown(), map[string]interface{}{
			"date":              snap.Date,
			"state":             snap.State,
			"initial_seconds":   snap.InitialSeconds,
			"remaining_seconds": snap.RemainingSeconds,
			"anchor_at":         snap.AnchorAt.Format(time.RFC3339Nano),
			"exhausted_today":   formatBool(snap.ExhaustedToday),
			"credited_minutes":  snap.CreditedMinutes,
			"fired_warnings":    formatFiredWarnings(snap.FiredWarnings),
		})
		return nil
	})
	return err
}
