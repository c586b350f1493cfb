package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"github.com/redis/go-redis/v9"
)

type ruleStore struct {
	client *redis.Client
	keys   keyspace
}

// List returns all rules ordered by insertion sequence
func (s *ruleStore) List(ctx context.Context) ([]storage.AppRule, error) {
	ids, err := s.client.ZRange(ctx, s.keys.rules(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []storage.AppRule{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.keys.rule(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	rules := make([]storage.AppRule, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		rule, err := parseAppRule(data)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}

	return rules, nil
}

// Put creates or updates a rule
func (s *ruleStore) Put(ctx context.Context, rule storage.AppRule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	script := redis.NewScript(putRuleScript)
	return script.Run(ctx, s.client, []string{s.keys.rule(rule.ID), s.keys.rules()}, ruleArgs(rule)...).Err()
}

// Delete removes a rule by ID
func (s *ruleStore) Delete(ctx context.Context, id string) error {
	removed, err := s.client.ZRem(ctx, s.keys.rules(), id).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return storage.ErrNotFound
	}
	return s.client.Del(ctx, s.keys.rule(id)).Err()
}

// ReplaceAll swaps the whole rule set inside one MULTI/EXEC
func (s *ruleStore) ReplaceAll(ctx context.Context, rules []storage.AppRule) error {
	existing, err := s.client.ZRange(ctx, s.keys.rules(), 0, -1).Result()
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range existing {
			pipe.Del(ctx, s.keys.rule(id))
		}
		pipe.Del(ctx, s.keys.rules())
		for _, rule := range rules {
			pipe.HSet(ctx, s.keys.rule(rule.ID), ruleFields(rule))
			pipe.ZAdd(ctx, s.keys.rules(), redis.Z{Score: float64(rule.Seq), Member: rule.ID})
		}
		return nil
	})
	return err
}

func ruleArgs(rule storage.AppRule) []interface{} {
	return []interface{}{
		rule.ID,
		rule.AppToken,
		rule.DisplayName,
		rule.BundleID,
		rule.MaxDailySeconds,
		formatBool(rule.Enabled),
		rule.AddedAt.Format(time.RFC3339Nano),
		rule.Seq,
	}
}

func ruleFields(rule storage.AppRule) map[string]interface{} {
	return map[string]interface{}{
		"id":                rule.ID,
		"app_token":         rule.AppToken,
		"display_name":      rule.DisplayName,
		"bundle_id":         rule.BundleID,
		"max_daily_seconds": rule.MaxDailySeconds,
		"enabled":           formatBool(rule.Enabled),
		"added_at":          rule.AddedAt.Format(time.RFC3339Nano),
		"seq":               rule.Seq,
	}
}
