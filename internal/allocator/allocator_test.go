package allocator

import (
	"math/rand"
	"testing"

	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(token string, capSeconds int64) storage.AppRule {
	return storage.AppRule{AppToken: token, DisplayName: token, MaxDailySeconds: capSeconds, Enabled: true}
}

func statusFor(statuses []Status, appToken string) (Status, bool) {
	for _, s := range statuses {
		if s.AppToken == appToken {
			return s, true
		}
	}
	return Status{}, false
}

func TestZeroBudgetLocksEverything(t *testing.T) {
	statuses := Allocate(0, []storage.AppRule{rule("app1", 3600)}, nil)

	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].IsUnlocked)
	assert.Equal(t, int64(0), statuses[0].RemainingSeconds)
}

func TestSharedPoolSplit(t *testing.T) {
	rules := []storage.AppRule{rule("app1", 3600), rule("app2", 3600)}
	used := map[string]int64{"app1": 500}

	statuses := Allocate(1200, rules, used)
	require.Len(t, statuses, 2)
	assert.Equal(t, int64(700), RemainingShared(1200, rules, used))

	app1, ok := statusFor(statuses, "app1")
	require.True(t, ok)
	assert.Equal(t, int64(700), app1.RemainingSeconds)
	assert.Equal(t, int64(1200), app1.TotalAllottedSeconds)
	assert.Equal(t, int64(500), app1.UsedSeconds)
	assert.True(t, app1.IsUnlocked)

	app2, ok := statusFor(statuses, "app2")
	require.True(t, ok)
	assert.Equal(t, int64(700), app2.RemainingSeconds)
	assert.True(t, app2.IsUnlocked)
}

func TestAppCapLimitsDraw(t *testing.T) {
	rules := []storage.AppRule{rule("short", 600), rule("long", 7200)}
	used := map[string]int64{"short": 600, "long": 100}

	statuses := Allocate(3600, rules, used)

	short, _ := statusFor(statuses, "short")
	assert.False(t, short.IsUnlocked, "app at its cap is locked even with pool left")
	assert.Equal(t, int64(0), short.RemainingSeconds)

	long, _ := statusFor(statuses, "long")
	assert.True(t, long.IsUnlocked)
	assert.Equal(t, int64(2900), long.RemainingSeconds)
	assert.Equal(t, int64(3600), long.TotalAllottedSeconds)
}

func TestExhaustedPoolLocksAll(t *testing.T) {
	rules := []storage.AppRule{rule("a", 3600), rule("b", 3600)}
	statuses := Allocate(600, rules, map[string]int64{"a": 400, "b": 200})

	for _, s := range statuses {
		assert.False(t, s.IsUnlocked, s.AppToken)
		assert.Equal(t, int64(0), s.RemainingSeconds, s.AppToken)
	}
}

func TestDisabledRulesAreIgnored(t *testing.T) {
	disabled := rule("off", 3600)
	disabled.Enabled = false
	rules := []storage.AppRule{rule("on", 3600), disabled}

	statuses := Allocate(1000, rules, map[string]int64{"off": 900})
	require.Len(t, statuses, 1)
	assert.Equal(t, "on", statuses[0].AppToken)
	assert.Equal(t, int64(1000), statuses[0].RemainingSeconds, "disabled app usage does not drain the pool")
}

func TestRulesWithoutTokenUseDisplayName(t *testing.T) {
	r := storage.AppRule{DisplayName: "Reader", MaxDailySeconds: 3600, Enabled: true}
	statuses := Allocate(1000, []storage.AppRule{r}, map[string]int64{"name:Reader": 400})

	require.Len(t, statuses, 1)
	assert.Equal(t, int64(400), statuses[0].UsedSeconds)
	assert.Equal(t, int64(600), statuses[0].RemainingSeconds)
}

func TestNegativeInputsAreClamped(t *testing.T) {
	statuses := Allocate(-50, []storage.AppRule{rule("a", -10)}, map[string]int64{"a": -100})
	require.Len(t, statuses, 1)
	assert.Equal(t, int64(0), statuses[0].RemainingSeconds)
	assert.Equal(t, int64(0), statuses[0].TotalAllottedSeconds)
	assert.Equal(t, int64(0), statuses[0].UsedSeconds)
	assert.False(t, statuses[0].IsUnlocked)
}

func TestRemainingStaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		n := 1 + rng.Intn(5)
		rules := make([]storage.AppRule, 0, n)
		used := make(map[string]int64, n)
		for j := 0; j < n; j++ {
			token := string(rune('a' + j))
			rules = append(rules, rule(token, rng.Int63n(7200)))
			used[token] = rng.Int63n(7200)
		}
		total := rng.Int63n(10800)

		for _, s := range Allocate(total, rules, used) {
			r, _ := findRule(rules, s.AppToken)
			if s.RemainingSeconds < 0 || s.RemainingSeconds > r.MaxDailySeconds {
				t.Fatalf("remaining %d out of [0,%d] for total=%d used=%v", s.RemainingSeconds, r.MaxDailySeconds, total, used)
			}
		}
	}
}

func findRule(rules []storage.AppRule, token string) (storage.AppRule, bool) {
	for _, r := range rules {
		if r.AppToken == token {
			return r, true
		}
	}
	return storage.AppRule{}, false
}
