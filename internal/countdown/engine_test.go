package countdown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestEngine() (*Engine, *MockClock) {
	clock := &MockClock{CurrentTime: day}
	return NewEngine([]time.Duration{5 * time.Minute, time.Minute}, time.UTC), clock
}

func countEvents(events []Event, typ EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestStartOnlyFromIdle(t *testing.T) {
	e, clock := newTestEngine()

	assert.False(t, e.Start(clock.Now(), 0), "zero budget must not start")
	require.True(t, e.Start(clock.Now(), 30))
	assert.Equal(t, StateRunning, e.State())
	assert.Equal(t, int64(1800), e.Initial())
	assert.Equal(t, int64(1800), e.Remaining(clock.Now()))

	assert.False(t, e.Start(clock.Now(), 60), "second start must be ignored")
	assert.Equal(t, int64(1800), e.Remaining(clock.Now()))
}

func TestTickUsesWallClock(t *testing.T) {
	e, clock := newTestEngine()
	require.True(t, e.Start(clock.Now(), 10))

	clock.Advance(time.Second)
	e.Tick(clock.Now())
	assert.Equal(t, int64(599), e.Remaining(clock.Now()))

	// Suspended for two minutes: no ticks delivered
	clock.Advance(2 * time.Minute)
	e.Tick(clock.Now())
	assert.Equal(t, int64(479), e.Remaining(clock.Now()))
}

func TestClockMovedBackwardsIsClamped(t *testing.T) {
	e, clock := newTestEngine()
	require.True(t, e.Start(clock.Now(), 10))

	clock.Advance(10 * time.Second)
	e.Tick(clock.Now())
	require.Equal(t, int64(590), e.Remaining(clock.Now()))

	clock.Advance(-time.Minute)
	e.Tick(clock.Now())
	assert.Equal(t, int64(590), e.Remaining(clock.Now()))

	clock.Advance(5 * time.Second)
	e.Tick(clock.Now())
	assert.Equal(t, int64(585), e.Remaining(clock.Now()))
}

func TestExpiryFiresOnce(t *testing.T) {
	e, clock := newTestEngine()
	require.True(t, e.Start(clock.Now(), 1))

	var events []Event
	for i := 0; i < 90; i++ {
		clock.Advance(time.Second)
		events = append(events, e.Tick(clock.Now())...)
	}

	assert.Equal(t, 1, countEvents(events, EventTimeExpired))
	assert.Equal(t, StateExhausted, e.State())
	assert.True(t, e.HasExhaustedForToday(clock.Now()))
	assert.Equal(t, int64(0), e.Remaining(clock.Now()))
}

func TestWarningsFireOncePerCrossing(t *testing.T) {
	e, clock := newTestEngine()
	require.True(t, e.Start(clock.Now(), 6))

	var events []Event
	for i := 0; i < 90; i++ {
		clock.Advance(time.Second)
		events = append(events, e.Tick(clock.Now())...)
	}
	require.Equal(t, 1, countEvents(events, EventTimeWarning))
	assert.Equal(t, int64(5), events[0].RemainingMinutes)

	// Top-up above the threshold re-arms it
	events = e.AddTime(clock.Now(), 2)
	require.Equal(t, 1, countEvents(events, EventBudgetAdded))

	events = nil
	for i := 0; i < 150; i++ {
		clock.Advance(time.Second)
		events = append(events, e.Tick(clock.Now())...)
	}
	assert.Equal(t, 1, countEvents(events, EventTimeWarning))
}

func TestDeductCrossingSeveralThresholdsWarnsOnce(t *testing.T) {
	e, clock := newTestEngine()
	require.True(t, e.Start(clock.Now(), 10))

	events := e.DeductTime(clock.Now(), 570)
	require.Len(t, events, 1)
	assert.Equal(t, EventTimeWarning, events[0].Type)
	assert.Equal(t, int64(1), events[0].RemainingMinutes)

	clock.Advance(10 * time.Second)
	events = e.Tick(clock.Now())
	assert.Equal(t, 0, countEvents(events, EventTimeWarning))
}

func TestDeductClampsAndExhausts(t *testing.T) {
	e, clock := newTestEngine()
	require.True(t, e.Start(clock.Now(), 10))
	e.DeductTime(clock.Now(), 350)
	require.Equal(t, int64(250), e.Remaining(clock.Now()))

	events := e.DeductTime(clock.Now(), 300)
	assert.Equal(t, 1, countEvents(events, EventTimeExpired))
	assert.Equal(t, int64(0), e.Remaining(clock.Now()))
	assert.Equal(t, StateExhausted, e.State())

	events = e.DeductTime(clock.Now(), 300)
	assert.Empty(t, events)
}

func TestExhaustionIsStickyForTheDay(t *testing.T) {
	e, clock := newTestEngine()
	require.True(t, e.Start(clock.Now(), 1))
	e.DeductTime(clock.Now(), 60)
	require.True(t, e.HasExhaustedForToday(clock.Now()))

	assert.False(t, e.Start(clock.Now(), 30))
	assert.Empty(t, e.AddTime(clock.Now(), 30))
	assert.Empty(t, e.Stop(clock.Now()))
	assert.True(t, e.HasExhaustedForToday(clock.Now()))
	assert.Equal(t, int64(0), e.Remaining(clock.Now()))
}

func TestDayRolloverResetsToIdle(t *testing.T) {
	e, clock := newTestEngine()
	require.True(t, e.Start(clock.Now(), 1))
	e.DeductTime(clock.Now(), 120)
	require.True(t, e.HasExhaustedForToday(clock.Now()))

	clock.Advance(24 * time.Hour)
	assert.False(t, e.HasExhaustedForToday(clock.Now()))
	e.Tick(clock.Now())
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, "2024-03-11", e.Date())
	assert.True(t, e.Start(clock.Now(), 20))
}

func TestAddTimeNeverReplacesRemaining(t *testing.T) {
	e, clock := newTestEngine()
	require.True(t, e.Start(clock.Now(), 30))

	clock.Advance(10 * time.Minute)
	e.Tick(clock.Now())
	require.Equal(t, int64(1200), e.Remaining(clock.Now()))

	events := e.AddTime(clock.Now(), 5)
	require.Len(t, events, 1)
	assert.Equal(t, int64(5), events[0].DeltaMinutes)
	assert.Equal(t, int64(1500), e.Remaining(clock.Now()))
	assert.Equal(t, int64(2100), e.Initial())

	assert.Empty(t, e.AddTime(clock.Now(), 0))
	assert.Empty(t, e.AddTime(clock.Now(), -5))
}

func TestStopIsIdempotentAndResumable(t *testing.T) {
	e, clock := newTestEngine()
	require.True(t, e.Start(clock.Now(), 10))

	clock.Advance(time.Minute)
	e.Stop(clock.Now())
	e.Stop(clock.Now())
	assert.Equal(t, StateStopped, e.State())
	assert.Equal(t, int64(540), e.Remaining(clock.Now()))

	clock.Advance(time.Hour)
	assert.Equal(t, int64(540), e.Remaining(clock.Now()), "stopped countdown must not drain")

	require.True(t, e.Resume(clock.Now()))
	clock.Advance(40 * time.Second)
	e.Tick(clock.Now())
	assert.Equal(t, int64(500), e.Remaining(clock.Now()))
	assert.False(t, e.Resume(clock.Now()))
}

func TestSnapshotRestoreAppliesElapsedTime(t *testing.T) {
	e, clock := newTestEngine()
	require.True(t, e.Start(clock.Now(), 30))
	clock.Advance(5 * time.Minute)
	e.Tick(clock.Now())
	snap := e.Snapshot()

	// Process down for ten minutes
	clock.Advance(10 * time.Minute)
	restored := NewEngine([]time.Duration{5 * time.Minute, time.Minute}, time.UTC)
	restored.Restore(snap, clock.Now())
	restored.Tick(clock.Now())

	assert.Equal(t, StateRunning, restored.State())
	assert.Equal(t, int64(900), restored.Remaining(clock.Now()))
	assert.Equal(t, int64(1800), restored.Initial())
}

func TestRestoreExhaustedAndStaleSnapshots(t *testing.T) {
	e, clock := newTestEngine()
	require.True(t, e.Start(clock.Now(), 1))
	e.DeductTime(clock.Now(), 60)
	snap := e.Snapshot()

	restored := NewEngine(nil, time.UTC)
	restored.Restore(snap, clock.Now().Add(time.Hour))
	assert.True(t, restored.HasExhaustedForToday(clock.Now().Add(time.Hour)))
	assert.False(t, restored.Start(clock.Now().Add(time.Hour), 10))

	nextDay := NewEngine(nil, time.UTC)
	nextDay.Restore(snap, clock.Now().Add(24*time.Hour))
	assert.Equal(t, StateIdle, nextDay.State())
	assert.False(t, nextDay.HasExhaustedForToday(clock.Now().Add(24*time.Hour)))
}
