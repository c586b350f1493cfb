package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"github.com/redis/go-redis/v9"
)

type unlockStore struct {
	client *redis.Client
	keys   keyspace
}

// PutUnlock stores a grant, replacing any earlier grant for the same app
func (s *unlockStore) PutUnlock(ctx context.Context, unlock storage.TemporaryUnlock) error {
	if unlock.AppToken == "" {
		return fmt.Errorf("unlock app_token is required")
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.keys.unlock(unlock.AppToken), map[string]interface{}{
			"id":         unlock.ID,
			"app_token":  unlock.AppToken,
			"granted_at": unlock.GrantedAt.Format(time.RFC3339Nano),
			"expires_at": unlock.ExpiresAt.Format(time.RFC3339Nano),
		})
		pipe.ZAdd(ctx, s.keys.unlocks(), redis.Z{Score: float64(unlock.ExpiresAt.Unix()), Member: unlock.AppToken})
		return nil
	})
	return err
}

// ListUnlocks returns every stored grant ordered by expiry
func (s *unlockStore) ListUnlocks(ctx context.Context) ([]storage.TemporaryUnlock, error) {
	tokens, err := s.client.ZRange(ctx, s.keys.unlocks(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	if len(tokens) == 0 {
		return []storage.TemporaryUnlock{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(tokens))
	for i, token := range tokens {
		cmds[i] = pipe.HGetAll(ctx, s.keys.unlock(token))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	unlocks := make([]storage.TemporaryUnlock, 0, len(tokens))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		unlock, err := parseTemporaryUnlock(data)
		if err == nil {
			unlocks = append(unlocks, *unlock)
		}
	}

	return unlocks, nil
}

// DeleteUnlock removes the grant for an app
func (s *unlockStore) DeleteUnlock(ctx context.Context, appToken string) error {
	removed, err := s.client.ZRem(ctx, s.keys.unlocks(), appToken).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return storage.ErrNotFound
	}
	return s.client.Del(ctx, s.keys.unlock(appToken)).Err()
}

// DeleteExpiredUnlocks removes every grant that expired at or before now
func (s *unlockStore) DeleteExpiredUnlocks(ctx context.Context, now time.Time) (int, error) {
	script := redis.NewScript(deleteExpiredUnlocksScript)
	n, err := script.Run(ctx, s.client, []string{s.keys.unlocks()}, now.Unix(), s.keys.unlockPrefix()).Int()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// PutOverride records a penalty cancellation for a day
func (s *unlockStore) PutOverride(ctx context.Context, o storage.PenaltyOverride) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.keys.override(o.Date, o.AppToken), map[string]interface{}{
			"date":         o.Date,
			"app_token":    o.AppToken,
			"granted_at":   o.GrantedAt.Format(time.RFC3339Nano),
			"cost_minutes": o.CostMinutes,
		})
		pipe.SAdd(ctx, s.keys.overrideIndex(o.Date), o.AppToken)
		pipe.SAdd(ctx, s.keys.overrideDates(), o.Date)
		return nil
	})
	return err
}

// ListOverrides returns the penalty overrides recorded for a day
func (s *unlockStore) ListOverrides(ctx context.Context, date string) ([]storage.PenaltyOverride, error) {
	tokens, err := s.client.SMembers(ctx, s.keys.overrideIndex(date)).Result()
	if err != nil {
		return nil, err
	}

	overrides := make([]storage.PenaltyOverride, 0, len(tokens))
	for _, token := range tokens {
		data, err := s.client.HGetAll(ctx, s.keys.override(date, token)).Result()
		if err != nil {
			return nil, err
		}
		o, err := parsePenaltyOverride(data)
		if err != nil {
			continue
		}
		overrides = append(overrides, *o)
	}
	return overrides, nil
}

// DeleteOverridesBefore removes overrides dated before cutoffDate
func (s *unlockStore) DeleteOverridesBefore(ctx context.Context, cutoffDate string) (int, error) {
	if _, err := time.Parse(storage.DateLayout, cutoffDate); err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}

	dates, err := s.client.SMembers(ctx, s.keys.overrideDates()).Result()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, date := range dates {
		if date >= cutoffDate {
			continue
		}
		tokens, err := s.client.SMembers(ctx, s.keys.overrideIndex(date)).Result()
		if err != nil {
			return deleted, err
		}
		for _, token := range tokens {
			n, err := s.client.Del(ctx, s.keys.override(date, token)).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		if err := s.client.Del(ctx, s.keys.overrideIndex(date)).Err(); err != nil {
			return deleted, err
		}
		if err := s.client.SRem(ctx, s.keys.overrideDates(), date).Err(); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}
