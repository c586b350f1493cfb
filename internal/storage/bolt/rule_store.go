package bolt

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"go.etcd.io/bbolt"
)

type ruleStore struct {
	db *bbolt.DB
}

func (s *ruleStore) List(ctx context.Context) ([]storage.AppRule, error) {
	rules, err := listBucket[storage.AppRule](ctx, s.db, bucketRules)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Seq < rules[j].Seq })
	return rules, nil
}

func (s *ruleStore) Put(ctx context.Context, rule storage.AppRule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	return putBucketValue(ctx, s.db, bucketRules, rule.ID, rule)
}

func (s *ruleStore) Delete(ctx context.Context, id string) error {
	return deleteBucketValue(ctx, s.db, bucketRules, id)
}

// ReplaceAll swaps the whole rule set in one transaction.
func (s *ruleStore) ReplaceAll(ctx context.Context, rules []storage.AppRule) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := tx.DeleteBucket([]byte(bucketRules)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("drop rules bucket: %w", err)
		}
		b, err := tx.CreateBucket([]byte(bucketRules))
		if err != nil {
			return fmt.Errorf("create rules bucket: %w", err)
		}
		for _, rule := range rules {
			data, err := marshal(rule)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(rule.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}
