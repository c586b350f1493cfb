package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lxj901/qingheplan-sub004/internal/config"
	"github.com/lxj901/qingheplan-sub004/internal/storage"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() is "host:port", so Port stays 0
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
		KeyPrefix:    "qinghe",
		UsageTTL:     "2160h",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func TestRuleStore_PutListDelete(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	added := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

	rules := []storage.AppRule{
		{ID: "rule-2", AppToken: "tok-2", DisplayName: "Games", MaxDailySeconds: 1800, Enabled: false, AddedAt: added, Seq: 2},
		{ID: "rule-1", AppToken: "tok-1", DisplayName: "Video", MaxDailySeconds: 3600, Enabled: true, AddedAt: added, Seq: 1},
	}
	for _, rule := range rules {
		if err := store.Rules().Put(ctx, rule); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	listed, err := store.Rules().List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("Expected 2 rules, got %d", len(listed))
	}
	if listed[0].ID != "rule-1" || listed[1].ID != "rule-2" {
		t.Errorf("Expected seq order rule-1, rule-2; got %s, %s", listed[0].ID, listed[1].ID)
	}
	if !listed[0].Enabled || listed[0].MaxDailySeconds != 3600 || !listed[0].AddedAt.Equal(added) {
		t.Errorf("Unexpected rule-1 fields: %+v", listed[0])
	}

	if err := store.Rules().Delete(ctx, "rule-2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Rules().Delete(ctx, "rule-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRuleStore_ReplaceAll(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		if err := store.Rules().Put(ctx, storage.AppRule{ID: id, AppToken: "dup", Seq: uint64(i + 1)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	if err := store.Rules().ReplaceAll(ctx, []storage.AppRule{{ID: "c", AppToken: "dup", Seq: 3}}); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	listed, err := store.Rules().List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "c" {
		t.Fatalf("Expected only rule c, got %+v", listed)
	}
	if mr.Exists("qinghe:rule:a") {
		t.Error("Replaced rule hash should be deleted")
	}
}

func TestUsageStore_IncrementAndList(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	usageStore := store.Usage()

	if err := usageStore.IncrementDailyUsage(ctx, "2024-01-02", "app-a", 300); err != nil {
		t.Fatalf("IncrementDailyUsage failed: %v", err)
	}
	if err := usageStore.IncrementDailyUsage(ctx, "2024-01-02", "app-a", 200); err != nil {
		t.Fatalf("IncrementDailyUsage failed: %v", err)
	}
	if err := usageStore.IncrementDailyUsage(ctx, "2024-01-02", "app-b", 50); err != nil {
		t.Fatalf("IncrementDailyUsage failed: %v", err)
	}
	if err := usageStore.IncrementDailyUsage(ctx, "2024-01-02", "app-b", 0); err != nil {
		t.Fatalf("IncrementDailyUsage with zero seconds failed: %v", err)
	}

	usage, err := usageStore.GetDailyUsage(ctx, "2024-01-02", "app-a")
	if err != nil {
		t.Fatalf("GetDailyUsage failed: %v", err)
	}
	if usage.TotalSeconds != 500 {
		t.Errorf("Expected 500 seconds, got %d", usage.TotalSeconds)
	}

	listed, err := usageStore.ListDailyUsage(ctx, "2024-01-02")
	if err != nil {
		t.Fatalf("ListDailyUsage failed: %v", err)
	}
	if len(listed) != 2 {
		t.Errorf("Expected 2 usage records, got %d", len(listed))
	}

	if _, err := usageStore.GetDailyUsage(ctx, "2024-01-03", "app-a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a new day, got %v", err)
	}
}

func TestUsageStore_DeleteDailyUsageBefore(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	usageStore := store.Usage()

	_ = usageStore.IncrementDailyUsage(ctx, "2024-01-01", "app-a", 10)
	_ = usageStore.IncrementDailyUsage(ctx, "2024-01-01", "app-b", 10)
	_ = usageStore.IncrementDailyUsage(ctx, "2024-01-03", "app-a", 10)

	deleted, err := usageStore.DeleteDailyUsageBefore(ctx, "2024-01-02")
	if err != nil {
		t.Fatalf("DeleteDailyUsageBefore failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted records, got %d", deleted)
	}

	remaining, err := usageStore.ListDailyUsage(ctx, "2024-01-03")
	if err != nil {
		t.Fatalf("ListDailyUsage failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("Expected newer record to survive, got %d", len(remaining))
	}
}

func TestBudgetAndCountdownStore(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	now := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

	state := storage.BudgetState{Date: "2024-01-02", PlanMinutes: 10, SleepMinutes: 15, ExerciseMinutes: 5, TotalMinutes: 30, UpdatedAt: now}
	if err := store.Budget().PutBudgetState(ctx, state); err != nil {
		t.Fatalf("PutBudgetState failed: %v", err)
	}
	got, err := store.Budget().GetBudgetState(ctx, "2024-01-02")
	if err != nil {
		t.Fatalf("GetBudgetState failed: %v", err)
	}
	if got.TotalMinutes != 30 || got.SleepMinutes != 15 {
		t.Errorf("Unexpected budget state: %+v", got)
	}

	if _, err := store.Countdown().GetSnapshot(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for empty snapshot, got %v", err)
	}

	snap := storage.CountdownSnapshot{
		Date:             "2024-01-02",
		State:            "running",
		InitialSeconds:   1800,
		RemainingSeconds: 900,
		AnchorAt:         now,
		CreditedMinutes:  30,
		FiredWarnings:    []int64{300},
	}
	if err := store.Countdown().PutSnapshot(ctx, snap); err != nil {
		t.Fatalf("PutSnapshot failed: %v", err)
	}
	gotSnap, err := store.Countdown().GetSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if gotSnap.RemainingSeconds != 900 || gotSnap.State != "running" || !gotSnap.AnchorAt.Equal(now) {
		t.Errorf("Unexpected snapshot: %+v", gotSnap)
	}
	if len(gotSnap.FiredWarnings) != 1 || gotSnap.FiredWarnings[0] != 300 {
		t.Errorf("Expected fired warnings [300], got %v", gotSnap.FiredWarnings)
	}
}

func TestUnlockStore_ExpiryAndOverrides(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)

	unlocks := []storage.TemporaryUnlock{
		{ID: "u1", AppToken: "app-a", GrantedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute)},
		{ID: "u2", AppToken: "app-b", GrantedAt: now, ExpiresAt: now.Add(15 * time.Minute)},
	}
	for _, u := range unlocks {
		if err := store.Unlocks().PutUnlock(ctx, u); err != nil {
			t.Fatalf("PutUnlock failed: %v", err)
		}
	}

	deleted, err := store.Unlocks().DeleteExpiredUnlocks(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredUnlocks failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 expired unlock, got %d", deleted)
	}

	listed, err := store.Unlocks().ListUnlocks(ctx)
	if err != nil {
		t.Fatalf("ListUnlocks failed: %v", err)
	}
	if len(listed) != 1 || listed[0].AppToken != "app-b" || !listed[0].ExpiresAt.Equal(now.Add(15*time.Minute)) {
		t.Errorf("Unexpected unlocks: %+v", listed)
	}

	if err := store.Unlocks().PutOverride(ctx, storage.PenaltyOverride{Date: "2024-01-01", AppToken: "app-a", CostMinutes: 5}); err != nil {
		t.Fatalf("PutOverride failed: %v", err)
	}
	if err := store.Unlocks().PutOverride(ctx, storage.PenaltyOverride{Date: "2024-01-02", AppToken: "app-a", CostMinutes: 5}); err != nil {
		t.Fatalf("PutOverride failed: %v", err)
	}

	today, err := store.Unlocks().ListOverrides(ctx, "2024-01-02")
	if err != nil {
		t.Fatalf("ListOverrides failed: %v", err)
	}
	if len(today) != 1 || today[0].CostMinutes != 5 {
		t.Errorf("Unexpected overrides: %+v", today)
	}

	n, err := store.Unlocks().DeleteOverridesBefore(ctx, "2024-01-02")
	if err != nil {
		t.Fatalf("DeleteOverridesBefore failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 deleted override, got %d", n)
	}
}
