package bolt

import (
	"context"
	"fmt"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"go.etcd.io/bbolt"
)

type unlockStore struct {
	db *bbolt.DB
}

// PutUnlock stores a grant, replacing any earlier grant for the same app.
func (s *unlockStore) PutUnlock(ctx context.Context, unlock storage.TemporaryUnlock) error {
	if unlock.AppToken == "" {
		return fmt.Errorf("unlock app_token is required")
	}
	return putBucketValue(ctx, s.db, bucketUnlocks, unlock.AppToken, unlock)
}

func (s *unlockStore) ListUnlocks(ctx context.Context) ([]storage.TemporaryUnlock, error) {
	return listBucket[storage.TemporaryUnlock](ctx, s.db, bucketUnlocks)
}

func (s *unlockStore) DeleteUnlock(ctx context.Context, appToken string) error {
	return deleteBucketValue(ctx, s.db, bucketUnlocks, appToken)
}

func (s *unlockStore) DeleteExpiredUnlocks(ctx context.Context, now time.Time) (int, error) {
	return deleteWhere(ctx, s.db, bucketUnlocks, func(u storage.TemporaryUnlock) bool {
		return !u.IsActive(now)
	})
}

func (s *unlockStore) PutOverride(ctx context.Context, override storage.PenaltyOverride) error {
	return putBucketValue(ctx, s.db, bucketOverrides, overrideKey(override.Date, override.AppToken), override)
}

func (s *unlockStore) ListOverrides(ctx context.Context, date string) ([]storage.PenaltyOverride, error) {
	all, err := listBucket[storage.PenaltyOverride](ctx, s.db, bucketOverrides)
	if err != nil {
		return nil, err
	}
	overrides := make([]storage.PenaltyOverride, 0, len(all))
	for _, o := range all {
		if o.Date == date {
			overrides = append(overrides, o)
		}
	}
	return overrides, nil
}

func (s *unlockStore) DeleteOverridesBefore(ctx context.Context, cutoffDate string) (int, error) {
	if _, err := time.Parse(storage.DateLayout, cutoffDate); err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}
	return deleteWhere(ctx, s.db, bucketOverrides, func(o storage.PenaltyOverride) bool {
		return o.Date < cutoffDate
	})
}

func overrideKey(date, appToken string) string {
	return fmt.Sprintf("%s/%s", date, appToken)
}
