package policy

import (
	"log/slog"
	"time"

	"github.com/cptspacemanspiff/powerd/internal/clock"
	"github.com/cptspacemanspiff/powerd/internal/device"
)

// Critical actions, in order of preference.
const (
	ActionHybridSleep = "HybridSleep"
	ActionHibernate   = "Hibernate"
	ActionPowerOff    = "PowerOff"
)

// ActionDelay is how long the system stays at the Action level before the
// critical action is taken.
const ActionDelay = 20 * time.Second

// Capabilities reports which sleep actions the system supports.
type Capabilities interface {
	CanHybridSleep() bool
	CanHibernate() bool
}

// CriticalAction returns the first supported action starting at the
// configured preference. Unknown preferences start from the top.
func CriticalAction(preferred string, caps Capabilities) string {
	actions := []struct {
		name string
		can  func() bool
	}{
		{ActionHybridSleep, caps.CanHybridSleep},
		{ActionHibernate, caps.CanHibernate},
		{ActionPowerOff, nil},
	}

	start := 0
	for i, a := range actions {
		if a.name == preferred {
			start = i
			break
		}
	}
	for _, a := range actions[start:] {
		if a.can == nil || a.can() {
			return a.name
		}
	}
	return ActionPowerOff
}

// ActionTimer arms the critical action when the daemon-wide warning level
// reaches Action. At most one timer is pending at a time.
type ActionTimer struct {
	clock clock.Clock
	post  func(func())
	fire  func()
	log   *slog.Logger

	timer clock.Timer
	gen   uint64
}

// NewActionTimer returns a timer that calls fire after ActionDelay at the
// Action level. post runs a closure on the daemon's event loop; the timer
// callback never runs fire directly.
func NewActionTimer(c clock.Clock, post func(func()), fire func(), log *slog.Logger) *ActionTimer {
	if log == nil {
		log = slog.Default()
	}
	return &ActionTimer{clock: c, post: post, fire: fire, log: log}
}

// Update reacts to a new daemon-wide warning level.
func (a *ActionTimer) Update(level device.Level) {
	if level != device.LevelAction {
		if a.timer != nil {
			a.log.Debug("removing action timer as warning level changed", "level", level)
			a.timer.Stop()
			a.timer = nil
			a.gen++
		}
		return
	}
	if a.timer != nil {
		a.log.Debug("not taking action, timer already pending")
		return
	}

	a.gen++
	gen := a.gen
	a.log.Info("taking critical action soon", "delay", ActionDelay)
	a.timer = a.clock.AfterFunc(ActionDelay, func() {
		a.post(func() {
			if a.timer == nil || a.gen != gen {
				return
			}
			a.timer = nil
			a.fire()
		})
	})
}

// Pending reports whether the critical action is scheduled.
func (a *ActionTimer) Pending() bool { return a.timer != nil }
