package daemon

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cptspacemanspiff/powerd/internal/clock"
	"github.com/cptspacemanspiff/powerd/internal/collector"
	"github.com/cptspacemanspiff/powerd/internal/device"
	"github.com/cptspacemanspiff/powerd/internal/policy"
	"github.com/cptspacemanspiff/powerd/internal/storage"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// inline runs everything on the calling goroutine, which in tests is the
// only goroutine touching the daemon.
type inline struct{}

func (inline) Post(f func()) { f() }

func (inline) Call(_ context.Context, f func()) error {
	f()
	return nil
}

type fakeSource map[string]map[string]string

func (s fakeSource) Attribute(handle, name string) (string, bool) {
	v, ok := s[handle][name]
	return v, ok
}

func (s fakeSource) set(handle, name, value string) { s[handle][name] = value }

const (
	bat0  = "/sys/class/power_supply/BAT0"
	bat1  = "/sys/class/power_supply/BAT1"
	ac    = "/sys/class/power_supply/AC"
	mouse = "/sys/class/power_supply/hidpp_battery_0"
)

func battery(energy, status string) map[string]string {
	return map[string]string{
		"type":               "Battery",
		"present":            "1",
		"status":             status,
		"model_name":         "BAT-5000",
		"serial_number":      "1234",
		"energy_now":         energy,
		"energy_full":        "60000000",
		"energy_full_design": "60000000",
		"power_now":          "10000000",
		"voltage_now":        "12000000",
	}
}

func linePower(online string) map[string]string {
	return map[string]string{"type": "Mains", "online": online}
}

type fakePower struct {
	hybrid    bool
	inhibits  int
	releases  int
	taken     []string
	inhibited bool
}

func (p *fakePower) CanHybridSleep() bool { return p.hybrid }
func (p *fakePower) CanHibernate() bool   { return false }

func (p *fakePower) Inhibit() error {
	p.inhibits++
	p.inhibited = true
	return nil
}

func (p *fakePower) ReleaseInhibit() {
	p.releases++
	p.inhibited = false
}

func (p *fakePower) Take(action string) error {
	p.taken = append(p.taken, action)
	return nil
}

type recorded struct {
	id string
	p  device.Properties
}

type fakeStore struct {
	records []recorded
	sleeps  []collector.SleepEvent
	stats   int
	asked   string
}

func (s *fakeStore) Record(id string, p device.Properties, _ int64) error {
	s.records = append(s.records, recorded{id, p})
	return nil
}

func (s *fakeStore) GetHistory(id string, _ storage.HistoryKind, _, _ uint32, now int64) ([]storage.HistoryPoint, error) {
	s.asked = id
	return []storage.HistoryPoint{{Time: now, Value: 50, State: device.StateDischarging}}, nil
}

func (s *fakeStore) GetStatistics(id string, _ bool) ([]storage.StatsPoint, error) {
	s.asked = id
	return make([]storage.StatsPoint, s.stats), nil
}

func (s *fakeStore) InsertSleepEvent(e collector.SleepEvent) error {
	s.sleeps = append(s.sleeps, e)
	return nil
}

func (s *fakeStore) SleepEventsInRange(from, to int64) ([]collector.SleepEvent, error) {
	var out []collector.SleepEvent
	for _, e := range s.sleeps {
		if e.WakeTime >= from && e.SleepTime <= to {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakePublisher struct {
	added    []DeviceInfo
	removed  []DeviceInfo
	changed  []DeviceInfo
	displays []device.Properties
	statuses []Status
}

func (p *fakePublisher) DeviceAdded(i DeviceInfo)           { p.added = append(p.added, i) }
func (p *fakePublisher) DeviceRemoved(i DeviceInfo)         { p.removed = append(p.removed, i) }
func (p *fakePublisher) DeviceChanged(i DeviceInfo)         { p.changed = append(p.changed, i) }
func (p *fakePublisher) DisplayChanged(d device.Properties) { p.displays = append(p.displays, d) }
func (p *fakePublisher) StatusChanged(s Status)             { p.statuses = append(p.statuses, s) }

type fixture struct {
	d     *Daemon
	clock *clock.Fake
	src   fakeSource
	power *fakePower
	store *fakeStore
	pub   *fakePublisher
}

func newFixture(t *testing.T, th policy.Thresholds) *fixture {
	t.Helper()

	f := &fixture{
		clock: clock.NewFake(time.Unix(1_700_000_000, 0)),
		src:   fakeSource{},
		power: &fakePower{hybrid: true},
		store: &fakeStore{stats: storage.StatsBins},
		pub:   &fakePublisher{},
	}
	f.d = New(Options{
		Exec:           inline{},
		Clock:          f.clock,
		Logger:         quiet,
		Thresholds:     th,
		CriticalAction: policy.ActionHybridSleep,
		Power:          f.power,
		Store:          f.store,
		Publisher:      f.pub,
	})
	if err := f.d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return f
}

func (f *fixture) add(handle string, attrs map[string]string) {
	f.src[handle] = attrs
	f.d.Submit(collector.Event{Action: collector.ActionAdd, Handle: handle, Source: f.src})
}

func (f *fixture) change(handle string) {
	f.d.Submit(collector.Event{Action: collector.ActionChange, Handle: handle, Source: f.src})
}

func (f *fixture) remove(handle string) {
	f.d.Submit(collector.Event{Action: collector.ActionRemove, Handle: handle, Source: f.src})
}

func (f *fixture) props(t *testing.T, handle string) device.Properties {
	t.Helper()
	e := f.d.reg.Lookup(handle)
	if e == nil {
		t.Fatalf("device %s not registered", handle)
	}
	return e.Device.Props
}

func (f *fixture) status(t *testing.T) Status {
	t.Helper()
	s, err := f.d.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	return s
}
