package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"github.com/redis/go-redis/v9"
)

type usageStore struct {
	client *redis.Client
	keys   keyspace
	ttl    time.Duration
}

// GetDailyUsage retrieves daily usage for a specific date and app
func (s *usageStore) GetDailyUsage(ctx context.Context, date, appToken string) (*storage.DailyUsage, error) {
	data, err := s.client.HGetAll(ctx, s.keys.usage(date, appToken)).Result()
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	return parseDailyUsage(data)
}

// ListDailyUsage returns all daily usage entries for a specific date
func (s *usageStore) ListDailyUsage(ctx context.Context, date string) ([]storage.DailyUsage, error) {
	tokens, err := s.client.SMembers(ctx, s.keys.usageIndex(date)).Result()
	if err != nil {
		return nil, err
	}

	if len(tokens) == 0 {
		return []storage.DailyUsage{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(tokens))
	for i, token := range tokens {
		cmds[i] = pipe.HGetAll(ctx, s.keys.usage(date, token))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	usages := make([]storage.DailyUsage, 0, len(tokens))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		usage, err := parseDailyUsage(data)
		if err == nil {
			usages = append(usages, *usage)
		}
	}

	return usages, nil
}

// IncrementDailyUsage atomically increments (or creates) daily usage
func (s *usageStore) IncrementDailyUsage(ctx context.Context, date, appToken string, seconds int64) error {
	if seconds <= 0 {
		return nil
	}
	script := redis.NewScript(incrementDailyUsageScript)

	keys := []string{s.keys.usage(date, appToken), s.keys.usageIndex(date), s.keys.usageDates()}
	args := []interface{}{date, appToken, seconds, int64(s.ttl / time.Second)}

	return script.Run(ctx, s.client, keys, args...).Err()
}

// DeleteDailyUsageBefore deletes daily usage entries dated before cutoffDate
func (s *usageStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	if _, err := time.Parse(storage.DateLayout, cutoffDate); err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}

	dates, err := s.client.SMembers(ctx, s.keys.usageDates()).Result()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, date := range dates {
		if date >= cutoffDate {
			continue
		}
		tokens, err := s.client.SMembers(ctx, s.keys.usageIndex(date)).Result()
		if err != nil {
			return deleted, err
		}
		if len(tokens) > 0 {
			usageKeys := make([]string, 0, len(tokens))
			for _, token := range tokens {
				usageKeys = append(usageKeys, s.keys.usage(date, token))
			}
			n, err := s.client.Del(ctx, usageKeys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		if err := s.client.Del(ctx, s.keys.usageIndex(date)).Err(); err != nil {
			return deleted, err
		}
		if err := s.client.SRem(ctx, s.keys.usageDates(), date).Err(); err != nil {
			return deleted, err
		}
	}

	return deleted, nil
}
