package poll

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cptspacemanspiff/powerd/internal/clock"
	"github.com/cptspacemanspiff/powerd/internal/device"
)

type fixture struct {
	clock  *clock.Fake
	sched  *Scheduler
	levels map[uint64]device.Level
	calls  map[uint64]int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:  clock.NewFake(time.Unix(1_700_000_000, 0)),
		levels: make(map[uint64]device.Level),
		calls:  make(map[uint64]int),
	}
	level := func(id uint64) (device.Level, bool) {
		l, ok := f.levels[id]
		return l, ok
	}
	post := func(fn func()) { fn() }
	f.sched = New(f.clock, post, level, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) add(t *testing.T, id uint64, level device.Level) {
	t.Helper()
	f.levels[id] = level
	require.NoError(t, f.sched.Start(id, func() { f.calls[id]++ }))
}

func TestIntervalFor(t *testing.T) {
	tests := []struct {
		level device.Level
		want  time.Duration
	}{
		{device.LevelUnknown, LongInterval},
		{device.LevelNone, LongInterval},
		{device.LevelDischarging, ShortInterval},
		{device.LevelLow, ShortInterval},
		{device.LevelAction, ShortInterval},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IntervalFor(tt.level), "level %v", tt.level)
	}
}

func TestStartPollsAtLevelInterval(t *testing.T) {
	f := newFixture(t)
	f.add(t, 1, device.LevelNone)
	f.add(t, 2, device.LevelLow)

	assert.Equal(t, LongInterval, f.sched.Interval(1))
	assert.Equal(t, ShortInterval, f.sched.Interval(2))

	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, f.calls[1])
	assert.Equal(t, 4, f.calls[2])
	assert.Equal(t, 2, f.sched.Active())
	assert.Equal(t, 2, f.clock.Pending())
}

func TestStartTwiceFails(t *testing.T) {
	f := newFixture(t)
	f.add(t, 1, device.LevelNone)
	assert.ErrorIs(t, f.sched.Start(1, func() {}), ErrAlreadyPolling)
	assert.Equal(t, 1, f.clock.Pending())
}

func TestNotifyLevelRearms(t *testing.T) {
	f := newFixture(t)
	f.add(t, 1, device.LevelNone)

	f.clock.Advance(time.Minute)
	f.levels[1] = device.LevelDischarging
	f.sched.NotifyLevel(1)
	assert.Equal(t, ShortInterval, f.sched.Interval(1))
	assert.Equal(t, 1, f.clock.Pending())

	f.clock.Advance(ShortInterval)
	assert.Equal(t, 1, f.calls[1])
}

func TestCallbackChangingLevel(t *testing.T) {
	f := newFixture(t)
	f.levels[1] = device.LevelNone
	require.NoError(t, f.sched.Start(1, func() {
		f.calls[1]++
		f.levels[1] = device.LevelLow
		f.sched.NotifyLevel(1)
	}))

	f.clock.Advance(LongInterval)
	assert.Equal(t, 1, f.calls[1])
	assert.Equal(t, ShortInterval, f.sched.Interval(1))
	assert.Equal(t, 1, f.clock.Pending())
}

func TestStopPreventsCallback(t *testing.T) {
	f := newFixture(t)
	f.add(t, 1, device.LevelNone)
	f.sched.Retry(1, func() { f.calls[1] += 100 })

	f.sched.Stop(1)
	f.sched.Stop(1)
	assert.Zero(t, f.clock.Pending())
	assert.False(t, f.sched.Polled(1))

	f.clock.Advance(time.Hour)
	assert.Zero(t, f.calls[1])
}

func TestVanishedDeviceIsDropped(t *testing.T) {
	f := newFixture(t)
	f.add(t, 1, device.LevelNone)
	delete(f.levels, 1)

	f.clock.Advance(LongInterval)
	assert.Zero(t, f.calls[1])
	assert.False(t, f.sched.Polled(1))
	assert.Zero(t, f.clock.Pending())
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	f.add(t, 1, device.LevelNone)
	f.add(t, 2, device.LevelDischarging)
	f.sched.Retry(2, func() {})

	f.sched.Pause()
	assert.True(t, f.sched.Paused())
	assert.Zero(t, f.clock.Pending())
	assert.Zero(t, f.sched.Active())

	// level changes while paused must not arm anything
	f.levels[1] = device.LevelLow
	f.sched.NotifyLevel(1)
	f.sched.Retry(1, func() {})
	assert.Zero(t, f.clock.Pending())

	f.clock.Advance(time.Hour)
	assert.Zero(t, f.calls[1]+f.calls[2])

	f.sched.Resume()
	f.sched.Resume()
	assert.Equal(t, 2, f.sched.Active())
	assert.Equal(t, 2, f.clock.Pending())
	assert.Equal(t, ShortInterval, f.sched.Interval(1))

	// repeated pause/resume cycles never accumulate timers
	for i := 0; i < 5; i++ {
		f.sched.Pause()
		f.sched.Resume()
	}
	assert.Equal(t, 2, f.clock.Pending())
}

func TestStartWhilePaused(t *testing.T) {
	f := newFixture(t)
	f.sched.Pause()
	f.add(t, 1, device.LevelNone)
	assert.True(t, f.sched.Polled(1))
	assert.Zero(t, f.clock.Pending())

	f.sched.Resume()
	assert.Equal(t, 1, f.clock.Pending())
}

func TestRetry(t *testing.T) {
	f := newFixture(t)
	f.levels[1] = device.LevelNone
	retries := 0

	f.sched.Retry(1, func() { retries++ })
	f.sched.Retry(1, func() { retries++ })
	assert.Equal(t, 1, f.clock.Pending())

	f.clock.Advance(device.RetryDelay)
	assert.Equal(t, 1, retries)

	f.sched.Retry(1, func() { retries++ })
	f.sched.CancelRetry(1)
	f.clock.Advance(device.RetryDelay)
	assert.Equal(t, 1, retries)
}
