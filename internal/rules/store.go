// Package rules keeps the set of app unlock rules.
//
// The in-memory set is authoritative for the process lifetime. Persistence
// failures are logged and never surface to readers.
package rules

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"github.com/rs/zerolog"
)

var (
	// ErrRuleExists is returned when a rule with the same identity is already present.
	ErrRuleExists = errors.New("rule already exists")

	// ErrRuleNotFound is returned when mutating an unknown rule.
	ErrRuleNotFound = errors.New("rule not found")
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// Store manages app unlock rules.
type Store struct {
	persist  storage.RuleStore
	clock    Clock
	logger   zerolog.Logger
	mu       sync.RWMutex
	rules    []storage.AppRule // ordered by Seq
	seq      uint64
	onChange []func()
}

// New loads persisted rules. A load failure starts with an empty set.
func New(ctx context.Context, persist storage.RuleStore, clock Clock, logger zerolog.Logger) *Store {
	s := &Store{
		persist: persist,
		clock:   clock,
		logger:  logger.With().Str("component", "rule-store").Logger(),
		rules:   make([]storage.AppRule, 0),
	}

	loaded, err := persist.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load rules, starting empty")
		return s
	}

	s.rules = loaded
	sortBySeq(s.rules)
	for _, r := range s.rules {
		if r.Seq > s.seq {
			s.seq = r.Seq
		}
	}
	s.logger.Info().Int("count", len(s.rules)).Msg("Rules loaded")
	return s
}

// OnChange registers a callback run after every successful mutation.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// AddOrUpdateRule inserts a rule. When a rule with the same token (or, with
// no token, the same display name) exists, nothing changes and the existing
// rule is returned with ErrRuleExists.
func (s *Store) AddOrUpdateRule(ctx context.Context, appToken, displayName, bundleID string, maxDailySeconds int64, enabled bool) (storage.AppRule, error) {
	s.mu.Lock()
	key := storage.RuleKey(appToken, displayName)
	if i := s.indexOf(key); i >= 0 {
		existing := s.rules[i]
		s.mu.Unlock()
		s.logger.Info().Str("rule_key", key).Msg("Rule already exists, not adding")
		return existing, ErrRuleExists
	}

	s.seq++
	rule := storage.AppRule{
		ID:              "rule_" + uuid.New().String(),
		AppToken:        appToken,
		DisplayName:     displayName,
		BundleID:        bundleID,
		MaxDailySeconds: max(maxDailySeconds, 0),
		Enabled:         enabled,
		AddedAt:         s.clock.Now(),
		Seq:             s.seq,
	}
	s.rules = append(s.rules, rule)
	s.mu.Unlock()

	if err := s.persist.Put(ctx, rule); err != nil {
		s.logger.Error().Err(err).Str("rule_key", key).Msg("Failed to persist rule")
	}

	s.logger.Info().
		Str("rule_key", key).
		Str("display_name", displayName).
		Int64("max_daily_seconds", rule.MaxDailySeconds).
		Msg("Rule added")
	s.notify()
	return rule, nil
}

// RemoveRule deletes the rule for a token (or display-name key).
func (s *Store) RemoveRule(ctx context.Context, key string) error {
	s.mu.Lock()
	i := s.indexOf(key)
	if i < 0 {
		s.mu.Unlock()
		return ErrRuleNotFound
	}
	removed := s.rules[i]
	s.rules = append(s.rules[:i:i], s.rules[i+1:]...)
	s.mu.Unlock()

	if err := s.persist.Delete(ctx, removed.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error().Err(err).Str("rule_key", key).Msg("Failed to delete persisted rule")
	}

	s.logger.Info().Str("rule_key", key).Msg("Rule removed")
	s.notify()
	return nil
}

// SetEnabled enables or disables a rule.
func (s *Store) SetEnabled(ctx context.Context, key string, enabled bool) error {
	return s.update(ctx, key, func(r *storage.AppRule) { r.Enabled = enabled })
}

// SetMaxDailyTime changes a rule's daily cap.
func (s *Store) SetMaxDailyTime(ctx context.Context, key string, seconds int64) error {
	return s.update(ctx, key, func(r *storage.AppRule) { r.MaxDailySeconds = max(seconds, 0) })
}

func (s *Store) update(ctx context.Context, key string, mutate func(*storage.AppRule)) error {
	s.mu.Lock()
	i := s.indexOf(key)
	if i < 0 {
		s.mu.Unlock()
		return ErrRuleNotFound
	}
	mutate(&s.rules[i])
	updated := s.rules[i]
	s.mu.Unlock()

	if err := s.persist.Put(ctx, updated); err != nil {
		s.logger.Error().Err(err).Str("rule_key", key).Msg("Failed to persist rule update")
	}
	s.notify()
	return nil
}

// Get returns the rule for a key.
func (s *Store) Get(key string) (storage.AppRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(key); i >= 0 {
		return s.rules[i], true
	}
	return storage.AppRule{}, false
}

// ListRules returns every rule in insertion order.
func (s *Store) ListRules() []storage.AppRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.AppRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// ListEnabledRules returns the enabled rules in insertion order.
func (s *Store) ListEnabledRules() []storage.AppRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.AppRule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// HasEnabledRules reports whether at least one rule is enabled.
func (s *Store) HasEnabledRules() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rules {
		if r.Enabled {
			return true
		}
	}
	return false
}

// Deduplicate keeps only the most recently added rule for each identity and
// returns how many were removed. It never removes every rule.
func (s *Store) Deduplicate(ctx context.Context) int {
	s.mu.Lock()
	kept := dedupe(s.rules)
	removed := len(s.rules) - len(kept)
	if removed == 0 {
		s.mu.Unlock()
		return 0
	}
	s.rules = kept
	snapshot := make([]storage.AppRule, len(kept))
	copy(snapshot, kept)
	s.mu.Unlock()

	if err := s.persist.ReplaceAll(ctx, snapshot); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist deduplicated rules")
	}

	s.logger.Info().Int("removed", removed).Int("remaining", len(snapshot)).Msg("Duplicate rules removed")
	s.notify()
	return removed
}

// dedupe returns rules with one entry per identity key, keeping the highest
// Seq (then the latest AddedAt). Input order is preserved for survivors.
func dedupe(rules []storage.AppRule) []storage.AppRule {
	if len(rules) == 0 {
		return rules
	}
	newest := make(map[string]storage.AppRule, len(rules))
	for _, r := range rules {
		cur, ok := newest[r.Key()]
		if !ok || newer(r, cur) {
			newest[r.Key()] = r
		}
	}

	kept := make([]storage.AppRule, 0, len(newest))
	for _, r := range rules {
		if winner := newest[r.Key()]; winner.ID == r.ID && winner.Seq == r.Seq {
			kept = append(kept, r)
			delete(newest, r.Key())
		}
	}
	if len(kept) == 0 {
		return rules
	}
	return kept
}

func newer(a, b storage.AppRule) bool {
	if a.Seq != b.Seq {
		return a.Seq > b.Seq
	}
	return a.AddedAt.After(b.AddedAt)
}

func (s *Store) indexOf(key string) int {
	for i, r := range s.rules {
		if r.Key() == key {
			return i
		}
	}
	return -1
}

func (s *Store) notify() {
	s.mu.RLock()
	callbacks := make([]func(), len(s.onChange))
	copy(callbacks, s.onChange)
	s.mu.RUnlock()
	for _, fn := range callbacks {
		fn()
	}
}

func sortBySeq(rules []storage.AppRule) {
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Seq < rules[j].Seq })
}
