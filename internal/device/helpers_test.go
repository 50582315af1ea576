package device

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeSource map[string]string

func (f fakeSource) Attribute(_, name string) (string, bool) {
	v, ok := f[name]
	return v, ok
}

type fakeEnv struct {
	hasAC     bool
	acOnline  bool
	batteries int
	needsPoll bool
}

func (e *fakeEnv) LinePower() (bool, bool)   { return e.hasAC, e.acOnline }
func (e *fakeEnv) BatteryCount() int          { return e.batteries }
func (e *fakeEnv) NeedsPollAfterUevent() bool { return e.needsPoll }

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDevice(t *testing.T, src fakeSource, env *fakeEnv) (*Device, *fakeClock) {
	t.Helper()

	if env == nil {
		env = &fakeEnv{batteries: 1}
	}
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	d := New("/sys/class/power_supply/BAT0", Options{
		Source: src,
		Env:    env,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    clock.now,
	})
	if !d.Coldplug() {
		t.Fatalf("Coldplug() = false, want true")
	}
	return d, clock
}
