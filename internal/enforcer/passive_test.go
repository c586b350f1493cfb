package enforcer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassiveTracksRestrictions(t *testing.T) {
	p := NewPassive(zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, p.ApplyRestriction(ctx, "b"))
	require.NoError(t, p.ApplyRestriction(ctx, "a"))
	assert.Equal(t, []string{"a", "b"}, p.Restricted())

	restricted, err := p.IsRestricted(ctx, "a")
	require.NoError(t, err)
	assert.True(t, restricted)

	require.NoError(t, p.LiftRestriction(ctx, "a"))
	restricted, _ = p.IsRestricted(ctx, "a")
	assert.False(t, restricted)

	require.NoError(t, p.LiftAllRestrictions(ctx))
	assert.Empty(t, p.Restricted())
}

func TestPassiveScheduledRestrictions(t *testing.T) {
	p := NewPassive(zerolog.Nop())
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, p.ScheduleRestrictionAt(ctx, "video", now.Add(15*time.Minute)))
	require.NoError(t, p.ScheduleRestrictionAt(ctx, "game", now.Add(time.Minute)))

	assert.Empty(t, p.Due(now))
	assert.Equal(t, []string{"game"}, p.Due(now.Add(time.Minute)))
	assert.Equal(t, []string{"video"}, p.Due(now.Add(time.Hour)))
	assert.Empty(t, p.Due(now.Add(2*time.Hour)))

	assert.Equal(t, []string{"game", "video"}, p.Restricted())
}

func TestPassiveLiftCancelsSchedule(t *testing.T) {
	p := NewPassive(zerolog.Nop())
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, p.ScheduleRestrictionAt(ctx, "video", now.Add(time.Minute)))
	require.NoError(t, p.LiftRestriction(ctx, "video"))

	assert.Empty(t, p.Due(now.Add(time.Hour)))
	restricted, err := p.IsRestricted(ctx, "video")
	require.NoError(t, err)
	assert.False(t, restricted)
}

func TestPassiveReportsNoTelemetry(t *testing.T) {
	p := NewPassive(zerolog.Nop())
	minutes, err := p.AppUsedMinutes(context.Background(), "video")
	require.NoError(t, err)
	assert.Zero(t, minutes)
}
