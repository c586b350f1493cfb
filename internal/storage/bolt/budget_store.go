package bolt

import (
	"context"

	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"go.etcd.io/bbolt"
)

type budgetStore struct {
	db *bbolt.DB
}

func (s *budgetStore) GetBudgetState(ctx context.Context, date string) (*storage.BudgetState, error) {
	return getBucketValue[storage.BudgetState](ctx, s.db, bucketBudget, date)
}

func (s *budgetStore) PutBudgetState(ctx context.Context, state storage.BudgetState) error {
	return putBucketValue(ctx, s.db, bucketBudget, state.Date, state)
}

type countdownStore struct {
	db *bbolt.DB
}

func (s *countdownStore) GetSnapshot(ctx context.Context) (*storage.CountdownSnapshot, error) {
	return getBucketValue[storage.CountdownSnapshot](ctx, s.db, bucketCountdown, countdownKey)
}

func (s *countdownStore) PutSnapshot(ctx context.Context, snapshot storage.CountdownSnapshot) error {
	return putBucketValue(ctx, s.db, bucketCountdown, countdownKey, snapshot)
}
