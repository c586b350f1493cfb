package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/lxj901/qingheplan-sub004/internal/config"
	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "qinghe"

// Store implements the storage.Store interface using Redis
type Store struct {
	client         *redis.Client
	ruleStore      *ruleStore
	usageStore     *usageStore
	budgetStore    *budgetStore
	countdownStore *countdownStore
	unlockStore    *unlockStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	var usageTTL time.Duration
	if cfg.UsageTTL != "" {
		usageTTL, err = time.ParseDuration(cfg.UsageTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid usage_ttl: %w", err)
		}
	}

	// Host may already carry the port
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	keys := keyspace{prefix: prefix}

	store := &Store{
		client:         client,
		ruleStore:      &ruleStore{client: client, keys: keys},
		usageStore:     &usageStore{client: client, keys: keys, ttl: usageTTL},
		budgetStore:    &budgetStore{client: client, keys: keys},
		countdownStore: &countdownStore{client: client, keys: keys},
		unlockStore:    &unlockStore{client: client, keys: keys},
	}

	return store, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Rules returns the RuleStore implementation
func (s *Store) Rules() storage.RuleStore {
	return s.ruleStore
}

// Usage returns the UsageStore implementation
func (s *Store) Usage() storage.UsageStore {
	return s.usageStore
}

// Budget returns the BudgetStore implementation
func (s *Store) Budget() storage.BudgetStore {
	return s.budgetStore
}

// Countdown returns the CountdownStore implementation
func (s *Store) Countdown() storage.CountdownStore {
	return s.countdownStore
}

// Unlocks returns the UnlockStore implementation
func (s *Store) Unlocks() storage.UnlockStore {
	return s.unlockStore
}
