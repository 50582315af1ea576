package collector

import (
	"testing"

	"github.com/mdlayher/kobject"
)

func TestTranslateUEvent(t *testing.T) {
	s, _ := newTestSysfs(t)
	m := &UEventMonitor{src: s, log: quiet}

	tests := []struct {
		action    kobject.Action
		subsystem string
		want      Action
		ok        bool
	}{
		{kobject.Add, "power_supply", ActionAdd, true},
		{kobject.Remove, "power_supply", ActionRemove, true},
		{kobject.Change, "power_supply", ActionChange, true},
		{kobject.Action("bind"), "power_supply", 0, false},
		{kobject.Change, "backlight", 0, false},
	}
	for _, tt := range tests {
		kev := &kobject.Event{
			Action:     tt.action,
			Subsystem:  tt.subsystem,
			DevicePath: "/devices/LNXSYSTM:00/PNP0C0A:00/power_supply/BAT1",
			Values:     map[string]string{"POWER_SUPPLY_CAPACITY": "57"},
		}
		ev, ok := m.translate(kev)
		if ok != tt.ok {
			t.Errorf("translate(%s %s) ok = %v, want %v", tt.action, tt.subsystem, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if ev.Action != tt.want || ev.Handle != s.Handle("power_supply", "BAT1") {
			t.Errorf("translate(%s) = %+v", tt.action, ev)
		}
		if ev.Source != s {
			t.Errorf("translate(%s) source = %v, want the sysfs source", tt.action, ev.Source)
		}
	}
}

func TestTranslateNilUEvent(t *testing.T) {
	m := &UEventMonitor{log: quiet}
	if _, ok := m.translate(nil); ok {
		t.Fatal("translate(nil) ok = true")
	}
}
