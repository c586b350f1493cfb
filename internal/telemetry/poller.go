// Package telemetry converts cumulative usage readings into ledger deltas.
package telemetry

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lxj901/qingheplan-sub004/internal/enforcer"
	"github.com/lxj901/qingheplan-sub004/internal/metrics"
	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"github.com/rs/zerolog"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// Rules lists the apps to poll.
type Rules interface {
	ListEnabledRules() []storage.AppRule
}

// Ledger provides the usage already recorded locally. It seeds the baseline
// the first time an app is read on a given day.
type Ledger interface {
	LocalSeconds(appToken, date string) int64
}

// Sink receives positive usage deltas.
type Sink interface {
	SyncTelemetry(ctx context.Context, ruleKey string, deltaSeconds int64)
}

// Poller periodically reads usage telemetry for every enabled app.
type Poller struct {
	telemetry enforcer.UsageTelemetry
	rules     Rules
	ledger    Ledger
	sink      Sink
	clock     Clock
	loc       *time.Location
	interval  time.Duration
	readings  *lru.Cache[string, int64] // date|token -> last cumulative seconds
	logger    zerolog.Logger
	stopChan  chan struct{}
}

// NewPoller creates a telemetry poller.
func NewPoller(
	telemetry enforcer.UsageTelemetry,
	rules Rules,
	ledger Ledger,
	sink Sink,
	clock Clock,
	loc *time.Location,
	interval time.Duration,
	cacheSize int,
	logger zerolog.Logger,
) (*Poller, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	readings, err := lru.New[string, int64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry cache: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}

	return &Poller{
		telemetry: telemetry,
		rules:     rules,
		ledger:    ledger,
		sink:      sink,
		clock:     clock,
		loc:       loc,
		interval:  interval,
		readings:  readings,
		logger:    logger.With().Str("component", "telemetry").Logger(),
		stopChan:  make(chan struct{}),
	}, nil
}

// Start begins polling.
func (p *Poller) Start() {
	go p.run()
	p.logger.Info().Dur("interval", p.interval).Msg("Telemetry poller started")
}

// Stop stops polling.
func (p *Poller) Stop() {
	close(p.stopChan)
	p.logger.Info().Msg("Telemetry poller stopped")
}

func (p *Poller) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Poll(context.Background())
		case <-p.stopChan:
			return
		}
	}
}

// Poll reads every enabled app once and forwards new usage. It returns the
// number of seconds forwarded.
func (p *Poller) Poll(ctx context.Context) int64 {
	date := storage.DateKey(p.clock.Now(), p.loc)
	var forwarded int64

	for _, rule := range p.rules.ListEnabledRules() {
		if rule.AppToken == "" {
			continue
		}

		minutes, err := p.telemetry.AppUsedMinutes(ctx, rule.AppToken)
		if err != nil {
			metrics.TelemetryPolls.WithLabelValues("error").Inc()
			p.logger.Warn().Err(err).Str("app_token", rule.AppToken).Msg("Failed to read usage telemetry")
			continue
		}
		if minutes <= 0 {
			metrics.TelemetryPolls.WithLabelValues("empty").Inc()
			continue
		}
		metrics.TelemetryPolls.WithLabelValues("ok").Inc()

		current := int64(minutes) * 60
		key := date + "|" + rule.AppToken
		previous, ok := p.readings.Get(key)
		if !ok {
			previous = p.ledger.LocalSeconds(rule.Key(), date)
		}
		p.readings.Add(key, current)

		delta := current - previous
		if delta <= 0 {
			if delta < 0 {
				p.logger.Debug().
					Str("app_token", rule.AppToken).
					Int64("previous_seconds", previous).
					Int64("current_seconds", current).
					Msg("Telemetry reading went backwards, resetting baseline")
			}
			continue
		}

		p.sink.SyncTelemetry(ctx, rule.Key(), delta)
		forwarded += delta
	}
	return forwarded
}
