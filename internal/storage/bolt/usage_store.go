package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"go.etcd.io/bbolt"
)

type usageStore struct {
	db *bbolt.DB
}

func (s *usageStore) GetDailyUsage(ctx context.Context, date, appToken string) (*storage.DailyUsage, error) {
	return getBucketValue[storage.DailyUsage](ctx, s.db, bucketDailyUsage, dailyUsageKey(date, appToken))
}

func (s *usageStore) ListDailyUsage(ctx context.Context, date string) ([]storage.DailyUsage, error) {
	prefix := []byte(date + "/")
	records := make([]storage.DailyUsage, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var usage storage.DailyUsage
			if err := unmarshal(v, &usage); err != nil {
				return err
			}
			records = append(records, usage)
		}
		return nil
	})
	return records, err
}

func (s *usageStore) IncrementDailyUsage(ctx context.Context, date, appToken string, seconds int64) error {
	if seconds <= 0 {
		return nil
	}
	key := dailyUsageKey(date, appToken)
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return fmt.Errorf("daily usage bucket missing")
		}
		var usage storage.DailyUsage
		if existing := b.Get([]byte(key)); existing != nil {
			if err := unmarshal(existing, &usage); err != nil {
				return err
			}
		} else {
			usage = storage.DailyUsage{
				Date:     date,
				AppToken: appToken,
			}
		}
		usage.TotalSeconds += seconds
		data, err := marshal(usage)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (s *usageStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	cutoff, err := time.Parse(storage.DateLayout, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}
	return deleteWhere(ctx, s.db, bucketDailyUsage, func(usage storage.DailyUsage) bool {
		dateValue, err := time.Parse(storage.DateLayout, usage.Date)
		if err != nil {
			return false
		}
		return dateValue.Before(cutoff)
	})
}

func dailyUsageKey(date, appToken string) string {
	return fmt.Sprintf("%s/%s", date, appToken)
}
