// Package allocator divides one daily budget across every enabled app.
//
// All enabled apps draw from a single shared pool. Each app is further
// limited by its own daily cap. Results are recomputed from scratch on every
// call; nothing is patched incrementally.
package allocator

import (
	"github.com/lxj901/qingheplan-sub004/internal/storage"
)

// Status is the derived unlock status of one app.
type Status struct {
	AppToken             string
	DisplayName          string
	IsUnlocked           bool
	RemainingSeconds     int64
	TotalAllottedSeconds int64
	UsedSeconds          int64
}

// Allocate computes the unlock status of every enabled rule. Disabled rules
// are skipped. Negative inputs are treated as zero.
func Allocate(totalBudgetSeconds int64, rules []storage.AppRule, used map[string]int64) []Status {
	total := max(totalBudgetSeconds, 0)
	remainingShared := RemainingShared(total, rules, used)

	statuses := make([]Status, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		appUsed := usedSeconds(used, rule)
		allotted := min(total, max(rule.MaxDailySeconds, 0))

		status := Status{
			AppToken:             rule.AppToken,
			DisplayName:          rule.DisplayName,
			TotalAllottedSeconds: allotted,
			UsedSeconds:          appUsed,
		}
		if total > 0 {
			status.RemainingSeconds = max(0, min(allotted-appUsed, remainingShared))
			status.IsUnlocked = remainingShared > 0 && appUsed < allotted
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// RemainingShared returns what is left of the pool after every enabled app's usage.
func RemainingShared(totalBudgetSeconds int64, rules []storage.AppRule, used map[string]int64) int64 {
	var totalUsed int64
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		totalUsed += usedSeconds(used, rule)
	}
	return max(0, max(totalBudgetSeconds, 0)-totalUsed)
}

func usedSeconds(used map[string]int64, rule storage.AppRule) int64 {
	return max(used[rule.Key()], 0)
}
