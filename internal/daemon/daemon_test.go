package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cptspacemanspiff/powerd/internal/collector"
	"github.com/cptspacemanspiff/powerd/internal/device"
	"github.com/cptspacemanspiff/powerd/internal/policy"
	"github.com/cptspacemanspiff/powerd/internal/poll"
	"github.com/cptspacemanspiff/powerd/internal/storage"
)

func percentagePolicy() policy.Thresholds {
	th := policy.DefaultThresholds()
	th.UsePercentageForPolicy = true
	return th
}

func TestColdplugBatteryPolls(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, policy.DefaultThresholds())

	f.add(bat0, battery("30000000", "Discharging"))

	devs, err := f.d.Devices(context.Background())
	require.NoError(err)
	require.Len(devs, 1)
	require.Equal(uint64(1), devs[0].ID)
	require.Len(f.pub.added, 1)

	p := f.props(t, bat0)
	require.Equal(device.StateDischarging, p.State)
	require.Equal(device.LevelNone, p.WarningLevel)
	require.Equal("battery-good-symbolic", p.IconName)
	require.Len(f.store.records, 1)
	require.Equal("BAT-5000-60-1234", f.store.records[0].id)

	require.Equal(Status{OnBattery: true, WarningLevel: device.LevelNone}, f.status(t))
	require.Equal(poll.LongInterval, f.d.sched.Interval(1))

	f.src.set(bat0, "energy_now", "29000000")
	f.clock.Advance(poll.LongInterval - time.Second)
	require.InDelta(30.0, f.props(t, bat0).Energy, 1e-9)
	f.clock.Advance(time.Second)
	require.InDelta(29.0, f.props(t, bat0).Energy, 1e-9)
	require.Len(f.store.records, 2)

	// unchanged readings are not published again
	changed := len(f.pub.changed)
	f.clock.Advance(poll.LongInterval)
	require.Len(f.pub.changed, changed)
}

func TestDuplicateAddRefreshes(t *testing.T) {
	f := newFixture(t, policy.DefaultThresholds())
	f.add(bat0, battery("30000000", "Discharging"))

	f.src.set(bat0, "energy_now", "20000000")
	f.add(bat0, f.src[bat0])

	assert.Equal(t, 1, f.d.reg.Len())
	assert.Len(t, f.pub.added, 1)
	assert.InDelta(t, 20.0, f.props(t, bat0).Energy, 1e-9)
}

func TestChangeForUnknownDeviceAdds(t *testing.T) {
	f := newFixture(t, policy.DefaultThresholds())
	f.src[ac] = linePower("1")
	f.change(ac)

	require.Equal(t, 1, f.d.reg.Len())
	assert.Equal(t, device.KindLinePower, f.props(t, ac).Kind)
	// line power is never polled
	assert.False(t, f.d.sched.Polled(1))
}

func TestLinePowerChangeRefreshesBatteries(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, policy.DefaultThresholds())

	f.add(ac, linePower("0"))
	f.add(bat0, battery("30000000", "Discharging"))
	require.True(f.status(t).OnBattery)

	f.src.set(ac, "online", "1")
	f.src.set(bat0, "status", "Charging")
	f.change(ac)

	p := f.props(t, bat0)
	require.Equal(device.StateCharging, p.State)
	require.Equal(int64(10800), p.TimeToFull)
	require.False(f.status(t).OnBattery)

	display, err := f.d.Display(context.Background())
	require.NoError(err)
	require.Equal(device.StateCharging, display.State)
	require.Equal("battery-good-charging-symbolic", display.IconName)
}

func TestRemoveRefreshesBatteries(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, policy.DefaultThresholds())

	f.add(ac, linePower("1"))
	f.add(bat0, battery("30000000", "Charging"))
	require.False(f.status(t).OnBattery)

	f.src.set(bat0, "status", "Discharging")
	f.remove(ac)

	require.Len(f.pub.removed, 1)
	require.Equal(ac, f.pub.removed[0].Handle)
	require.Equal(device.StateDischarging, f.props(t, bat0).State)
	require.True(f.status(t).OnBattery)

	// removing twice is harmless
	f.remove(ac)
	require.Len(f.pub.removed, 1)
}

func TestRemovedDeviceStopsPolling(t *testing.T) {
	f := newFixture(t, policy.DefaultThresholds())
	f.add(bat0, battery("30000000", "Discharging"))
	f.remove(bat0)

	assert.False(t, f.d.sched.Polled(1))
	assert.Zero(t, f.d.sched.Active())
	f.clock.Advance(10 * time.Minute)

	err := f.d.Refresh(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoSuchDevice)
}

func TestWarningLevelArmsCriticalAction(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, percentagePolicy())

	f.add(bat0, battery("1000000", "Discharging"))

	p := f.props(t, bat0)
	require.Equal(device.LevelAction, p.WarningLevel)
	require.Equal(poll.ShortInterval, f.d.sched.Interval(1))
	require.Equal(Status{OnBattery: true, WarningLevel: device.LevelAction}, f.status(t))
	require.Equal(device.LevelAction, f.pub.statuses[len(f.pub.statuses)-1].WarningLevel)
	// clients read the daemon-wide level from the display device
	require.Equal(device.LevelAction, f.pub.displays[len(f.pub.displays)-1].WarningLevel)

	f.clock.Advance(policy.ActionDelay - time.Second)
	require.Empty(f.power.taken)
	f.clock.Advance(time.Second)
	require.Equal([]string{policy.ActionHybridSleep}, f.power.taken)
}

func TestPluggingInCancelsCriticalAction(t *testing.T) {
	f := newFixture(t, percentagePolicy())

	f.add(ac, linePower("0"))
	f.add(bat0, battery("1000000", "Discharging"))
	require.Equal(t, device.LevelAction, f.status(t).WarningLevel)

	f.clock.Advance(10 * time.Second)
	f.src.set(ac, "online", "1")
	f.change(ac)
	assert.Equal(t, device.LevelNone, f.status(t).WarningLevel)

	f.clock.Advance(time.Minute)
	assert.Empty(t, f.power.taken)
}

func TestSetThresholdsRecomputesLevels(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, percentagePolicy())
	f.add(bat0, battery("30000000", "Discharging"))
	require.Equal(poll.LongInterval, f.d.sched.Interval(1))

	th := percentagePolicy()
	th.PercentageLow = 60
	f.d.SetThresholds(th, policy.ActionPowerOff)

	require.Equal(device.LevelLow, f.props(t, bat0).WarningLevel)
	require.Equal(device.LevelLow, f.status(t).WarningLevel)
	require.Equal(poll.ShortInterval, f.d.sched.Interval(1))

	action, err := f.d.CriticalAction(context.Background())
	require.NoError(err)
	require.Equal(policy.ActionPowerOff, action)
}

func TestTwoBatteriesCompose(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, policy.DefaultThresholds())

	f.add(bat0, battery("30000000", "Discharging"))
	second := battery("60000000", "Full")
	second["serial_number"] = "5678"
	second["power_now"] = "0"
	f.add(bat1, second)

	display, err := f.d.Display(context.Background())
	require.NoError(err)
	require.Equal(device.KindBattery, display.Kind)
	require.Equal(device.StateDischarging, display.State)
	require.InDelta(90.0, display.Energy, 1e-9)
	require.InDelta(75.0, display.Percentage, 1e-9)
	require.Equal(int64(32400), display.TimeToEmpty)
	require.True(display.IsPresent)
}

func TestUnknownPeripheralRetriesFast(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, policy.DefaultThresholds())

	f.add(mouse, map[string]string{
		"type":                "Battery",
		"scope":               "Device",
		"capacity":            "",
		"status":              "Discharging",
		device.AttrInputClass: "mouse",
	})
	p := f.props(t, mouse)
	require.Equal(device.KindMouse, p.Kind)
	require.Equal(device.StateUnknown, p.State)

	f.src.set(mouse, "capacity", "40")
	f.clock.Advance(device.RetryDelay)

	p = f.props(t, mouse)
	require.Equal(device.StateDischarging, p.State)
	require.InDelta(40.0, p.Percentage, 1e-9)

	// peripherals never drive the daemon-wide state
	require.Equal(Status{WarningLevel: device.LevelNone}, f.status(t))
}

type countingSource struct {
	fakeSource
	reads map[string]int
}

func (s countingSource) Attribute(handle, name string) (string, bool) {
	s.reads[name]++
	return s.fakeSource.Attribute(handle, name)
}

func TestUnknownRetryBudget(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, policy.DefaultThresholds())

	f.src[mouse] = map[string]string{
		"type":                "Battery",
		"scope":               "Device",
		"capacity":            "",
		"status":              "Discharging",
		device.AttrInputClass: "mouse",
	}
	src := countingSource{fakeSource: f.src, reads: map[string]int{}}
	f.d.Submit(collector.Event{Action: collector.ActionAdd, Handle: mouse, Source: src})
	require.Equal(device.StateUnknown, f.props(t, mouse).State)

	// every refresh reads capacity once; retries fire exactly one delay apart
	added := src.reads["capacity"]
	for i := 0; i < 60; i++ {
		f.clock.Advance(device.RetryDelay)
	}
	require.Equal(5, src.reads["capacity"]-added, "fast refreshes before the first poll")

	for i := 0; i < 70; i++ {
		f.clock.Advance(device.RetryDelay)
	}
	require.Equal(11, src.reads["capacity"]-added, "poll at 120s starts one more burst")
}

func TestSleepPausesPolling(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, policy.DefaultThresholds())
	f.add(bat0, battery("30000000", "Discharging"))
	require.Equal(1, f.power.inhibits)

	f.d.Sleep(true)
	require.Equal(1, f.power.releases)
	require.True(f.d.sched.Paused())

	f.src.set(bat0, "energy_now", "25000000")
	f.clock.Advance(10 * time.Minute)
	require.InDelta(30.0, f.props(t, bat0).Energy, 1e-9)

	f.d.Sleep(false)
	require.Equal(2, f.power.inhibits)
	require.False(f.d.sched.Paused())
	require.InDelta(25.0, f.props(t, bat0).Energy, 1e-9)

	require.Len(f.store.sleeps, 1)
	ev := f.store.sleeps[0]
	require.Equal(int64(600), ev.WakeTime-ev.SleepTime)
	listed, err := f.d.SleepEvents(ev.SleepTime+60, ev.SleepTime+120)
	require.NoError(err)
	require.Equal(f.store.sleeps, listed)

	f.src.set(bat0, "energy_now", "24000000")
	f.clock.Advance(poll.LongInterval)
	require.InDelta(24.0, f.props(t, bat0).Energy, 1e-9)
}

func TestHistoryAndStatistics(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t, policy.DefaultThresholds())
	f.add(ac, linePower("0"))
	f.add(bat0, battery("30000000", "Discharging"))

	points, err := f.d.History(ctx, 2, "charge", 3600, 100)
	require.NoError(err)
	require.Len(points, 1)
	require.Equal("BAT-5000-60-1234", f.store.asked)

	stats, err := f.d.Statistics(ctx, 2, "discharging")
	require.NoError(err)
	require.Len(stats, storage.StatsBins)

	_, err = f.d.History(ctx, 2, "bogus", 0, 10)
	require.ErrorIs(err, storage.ErrNoHistory)
	_, err = f.d.Statistics(ctx, 2, "bogus")
	require.ErrorIs(err, storage.ErrNoHistory)

	_, err = f.d.History(ctx, 1, "charge", 0, 10)
	require.ErrorIs(err, ErrNotSupported)
	_, err = f.d.History(ctx, DisplayID, "charge", 0, 10)
	require.ErrorIs(err, ErrNotSupported)
	_, err = f.d.History(ctx, 42, "charge", 0, 10)
	require.ErrorIs(err, ErrNoSuchDevice)

	f.store.stats = 5
	_, err = f.d.Statistics(ctx, 2, "charging")
	require.Error(err)
}

func TestDeviceLookup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, policy.DefaultThresholds())
	f.add(bat0, battery("30000000", "Discharging"))

	info, err := f.d.Device(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, bat0, info.Handle)

	display, err := f.d.Device(ctx, DisplayID)
	require.NoError(t, err)
	assert.Equal(t, device.KindBattery, display.Props.Kind)

	_, err = f.d.Device(ctx, 7)
	assert.ErrorIs(t, err, ErrNoSuchDevice)

	changed := len(f.pub.changed)
	assert.NoError(t, f.d.Refresh(ctx, DisplayID))
	assert.Len(t, f.pub.changed, changed, "refreshing the display device changes nothing")
}
