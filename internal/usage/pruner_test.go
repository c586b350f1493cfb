package usage

import (
	"context"
	"testing"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRun(t *testing.T) {
	p, err := NewPruner(nil, nil, 90, "03:00", testClock(), time.UTC, zerolog.Nop())
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before prune time",
			now:  time.Date(2024, 3, 10, 2, 59, 0, 0, time.UTC),
			want: time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly at prune time",
			now:  time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 11, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "after prune time",
			now:  time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 11, 3, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(p.NextRun(tt.now)), "got %v", p.NextRun(tt.now))
		})
	}
}

func TestNewPrunerRejectsBadTime(t *testing.T) {
	_, err := NewPruner(nil, nil, 90, "25:99", testClock(), time.UTC, zerolog.Nop())
	assert.Error(t, err)
}

func TestPruneRemovesStaleRecords(t *testing.T) {
	store := openStore(t)
	clock := testClock()
	ctx := context.Background()

	require.NoError(t, store.Usage().IncrementDailyUsage(ctx, "2023-12-01", "video", 100))
	require.NoError(t, store.Usage().IncrementDailyUsage(ctx, "2024-03-09", "video", 100))
	require.NoError(t, store.Unlocks().PutUnlock(ctx, storage.TemporaryUnlock{
		ID: "unlock_a", AppToken: "video", ExpiresAt: clock.Now().Add(-time.Minute),
	}))
	require.NoError(t, store.Unlocks().PutUnlock(ctx, storage.TemporaryUnlock{
		ID: "unlock_b", AppToken: "game", ExpiresAt: clock.Now().Add(time.Hour),
	}))
	require.NoError(t, store.Unlocks().PutOverride(ctx, storage.PenaltyOverride{Date: "2024-03-09", AppToken: "video"}))
	require.NoError(t, store.Unlocks().PutOverride(ctx, storage.PenaltyOverride{Date: "2024-03-10", AppToken: "video"}))

	p, err := NewPruner(store.Usage(), store.Unlocks(), 30, "03:00", clock, time.UTC, zerolog.Nop())
	require.NoError(t, err)

	result := p.Prune(ctx)
	assert.Equal(t, "2024-02-09", result.CutoffDate)
	assert.Equal(t, 1, result.UsageDeleted)
	assert.Equal(t, 1, result.UnlocksDeleted)
	assert.Equal(t, 1, result.OverridesDeleted)

	unlocks, err := store.Unlocks().ListUnlocks(ctx)
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
	assert.Equal(t, "game", unlocks[0].AppToken)

	recent, err := store.Usage().GetDailyUsage(ctx, "2024-03-09", "video")
	require.NoError(t, err)
	assert.Equal(t, int64(100), recent.TotalSeconds)
}
