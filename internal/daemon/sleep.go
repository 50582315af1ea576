package daemon

import "github.com/cptspacemanspiff/powerd/internal/collector"

// aboutToSleep stops all polling and lets the system suspend.
func (d *Daemon) aboutToSleep() {
	d.log.Info("system about to sleep, pausing polling")
	d.sched.Pause()
	d.sleepStart = d.clock.Now().Unix()
	if d.power != nil {
		d.power.ReleaseInhibit()
	}
}

// resumed takes the inhibitor again and catches up on what changed while
// the system slept before polling resumes.
func (d *Daemon) resumed() {
	d.log.Info("system resumed")
	if d.power != nil {
		if err := d.power.Inhibit(); err != nil {
			d.log.Warn("could not inhibit sleep", "err", err)
		}
	}
	d.refreshBatteries()
	d.updateWarningLevel()
	d.sched.Resume()

	if d.sleepStart == 0 || d.store == nil {
		d.sleepStart = 0
		return
	}
	ev := collector.SleepEvent{SleepTime: d.sleepStart, WakeTime: d.clock.Now().Unix(), Type: "unknown"}
	d.sleepStart = 0
	if err := d.store.InsertSleepEvent(ev); err != nil {
		d.log.Warn("could not record sleep event", "err", err)
	}
}
