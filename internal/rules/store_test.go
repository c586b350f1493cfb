package rules

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/countdown"
	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRuleStore struct {
	mu    sync.Mutex
	rules map[string]storage.AppRule
	err   error
}

func newMemRuleStore(initial ...storage.AppRule) *memRuleStore {
	m := &memRuleStore{rules: make(map[string]storage.AppRule)}
	for _, r := range initial {
		m.rules[r.ID] = r
	}
	return m
}

func (m *memRuleStore) List(ctx context.Context) ([]storage.AppRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]storage.AppRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRuleStore) Put(ctx context.Context, rule storage.AppRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rules[rule.ID] = rule
	return nil
}

func (m *memRuleStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.rules[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *memRuleStore) ReplaceAll(ctx context.Context, rules []storage.AppRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rules = make(map[string]storage.AppRule)
	for _, r := range rules {
		m.rules[r.ID] = r
	}
	return nil
}

func newTestStore(t *testing.T, persist storage.RuleStore) *Store {
	t.Helper()
	clock := &countdown.MockClock{CurrentTime: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	return New(context.Background(), persist, clock, zerolog.Nop())
}

func TestAddSameTokenTwiceKeepsOneRule(t *testing.T) {
	persist := newMemRuleStore()
	s := newTestStore(t, persist)
	ctx := context.Background()

	first, err := s.AddOrUpdateRule(ctx, "tok-1", "Video", "com.video", 3600, true)
	require.NoError(t, err)

	second, err := s.AddOrUpdateRule(ctx, "tok-1", "Video Again", "com.video", 60, true)
	assert.ErrorIs(t, err, ErrRuleExists)
	assert.Equal(t, first.ID, second.ID)

	assert.Len(t, s.ListRules(), 1)
	assert.Equal(t, int64(3600), s.ListRules()[0].MaxDailySeconds)

	stored, _ := persist.List(ctx)
	assert.Len(t, stored, 1)
}

func TestRulesWithoutTokenDedupeByName(t *testing.T) {
	s := newTestStore(t, newMemRuleStore())
	ctx := context.Background()

	_, err := s.AddOrUpdateRule(ctx, "", "Reader", "", 600, true)
	require.NoError(t, err)
	_, err = s.AddOrUpdateRule(ctx, "", "Reader", "", 600, true)
	assert.ErrorIs(t, err, ErrRuleExists)
	_, err = s.AddOrUpdateRule(ctx, "", "Browser", "", 600, true)
	require.NoError(t, err)

	assert.Len(t, s.ListRules(), 2)
	_, ok := s.Get("name:Reader")
	assert.True(t, ok)
}

func TestListEnabledRulesIsStable(t *testing.T) {
	s := newTestStore(t, newMemRuleStore())
	ctx := context.Background()

	for _, tok := range []string{"c", "a", "b"} {
		_, err := s.AddOrUpdateRule(ctx, tok, tok, "", 600, true)
		require.NoError(t, err)
	}
	require.NoError(t, s.SetEnabled(ctx, "a", false))

	enabled := s.ListEnabledRules()
	require.Len(t, enabled, 2)
	assert.Equal(t, "c", enabled[0].AppToken)
	assert.Equal(t, "b", enabled[1].AppToken)
	assert.True(t, s.HasEnabledRules())
}

func TestMutationsOfUnknownRule(t *testing.T) {
	s := newTestStore(t, newMemRuleStore())
	ctx := context.Background()

	assert.ErrorIs(t, s.RemoveRule(ctx, "missing"), ErrRuleNotFound)
	assert.ErrorIs(t, s.SetEnabled(ctx, "missing", true), ErrRuleNotFound)
	assert.ErrorIs(t, s.SetMaxDailyTime(ctx, "missing", 10), ErrRuleNotFound)
}

func TestSetMaxDailyTimeClampsNegative(t *testing.T) {
	s := newTestStore(t, newMemRuleStore())
	ctx := context.Background()

	_, err := s.AddOrUpdateRule(ctx, "tok", "App", "", 600, true)
	require.NoError(t, err)
	require.NoError(t, s.SetMaxDailyTime(ctx, "tok", -5))

	r, ok := s.Get("tok")
	require.True(t, ok)
	assert.Equal(t, int64(0), r.MaxDailySeconds)
}

func TestRemoveRule(t *testing.T) {
	persist := newMemRuleStore()
	s := newTestStore(t, persist)
	ctx := context.Background()

	_, err := s.AddOrUpdateRule(ctx, "tok", "App", "", 600, true)
	require.NoError(t, err)
	require.NoError(t, s.RemoveRule(ctx, "tok"))

	assert.Empty(t, s.ListRules())
	stored, _ := persist.List(ctx)
	assert.Empty(t, stored)
}

func TestDeduplicateKeepsNewestAndIsIdempotent(t *testing.T) {
	added := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	persist := newMemRuleStore(
		storage.AppRule{ID: "r1", AppToken: "tok", DisplayName: "Old", Seq: 1, AddedAt: added, Enabled: true},
		storage.AppRule{ID: "r2", AppToken: "other", DisplayName: "Other", Seq: 2, AddedAt: added, Enabled: true},
		storage.AppRule{ID: "r3", AppToken: "tok", DisplayName: "New", Seq: 3, AddedAt: added, Enabled: true},
		storage.AppRule{ID: "r4", DisplayName: "Reader", Seq: 4, AddedAt: added, Enabled: true},
		storage.AppRule{ID: "r5", DisplayName: "Reader", Seq: 5, AddedAt: added, Enabled: false},
	)
	s := newTestStore(t, persist)
	ctx := context.Background()

	removed := s.Deduplicate(ctx)
	assert.Equal(t, 2, removed)

	once := s.ListRules()
	require.Len(t, once, 3)
	assert.Equal(t, []string{"r2", "r3", "r5"}, ids(once))

	assert.Equal(t, 0, s.Deduplicate(ctx))
	assert.Equal(t, once, s.ListRules())

	stored, _ := persist.List(ctx)
	assert.Len(t, stored, 3)
}

func TestDeduplicateEmptyStore(t *testing.T) {
	s := newTestStore(t, newMemRuleStore())
	assert.Equal(t, 0, s.Deduplicate(context.Background()))
	assert.Empty(t, s.ListRules())
}

func TestPersistenceFailuresAreNotFatal(t *testing.T) {
	persist := newMemRuleStore()
	persist.err = errors.New("disk full")
	s := newTestStore(t, persist)
	ctx := context.Background()

	_, err := s.AddOrUpdateRule(ctx, "tok", "App", "", 600, true)
	require.NoError(t, err)
	assert.Len(t, s.ListEnabledRules(), 1, "in-memory state stays authoritative")
	require.NoError(t, s.SetEnabled(ctx, "tok", false))
	require.NoError(t, s.RemoveRule(ctx, "tok"))
}

func TestOnChangeCallback(t *testing.T) {
	s := newTestStore(t, newMemRuleStore())
	calls := 0
	s.OnChange(func() { calls++ })

	ctx := context.Background()
	_, _ = s.AddOrUpdateRule(ctx, "tok", "App", "", 600, true)
	_, _ = s.AddOrUpdateRule(ctx, "tok", "App", "", 600, true)
	_ = s.SetEnabled(ctx, "tok", false)

	assert.Equal(t, 2, calls)
}

func ids(rules []storage.AppRule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.ID
	}
	return out
}
