package daemon

import (
	"github.com/cptspacemanspiff/powerd/internal/collector"
	"github.com/cptspacemanspiff/powerd/internal/device"
	"github.com/cptspacemanspiff/powerd/internal/policy"
)

func (d *Daemon) handleEvent(ev collector.Event) {
	switch ev.Action {
	case collector.ActionAdd:
		d.addDevice(ev)
	case collector.ActionRemove:
		d.removeDevice(ev.Handle)
	case collector.ActionChange:
		e := d.reg.Lookup(ev.Handle)
		if e == nil {
			d.log.Debug("change for unknown device, adding", "handle", ev.Handle)
			d.addDevice(ev)
			return
		}
		d.refresh(e)
	default:
		d.log.Warn("unhandled device event", "action", ev.Action, "handle", ev.Handle)
	}
}

func (d *Daemon) addDevice(ev collector.Event) {
	if e := d.reg.Lookup(ev.Handle); e != nil {
		d.log.Debug("device already registered, refreshing", "handle", ev.Handle)
		d.refresh(e)
		return
	}

	dev := device.New(ev.Handle, device.Options{
		Source:          ev.Source,
		Env:             d,
		Logger:          d.devLog,
		Now:             d.clock.Now,
		NoPollBatteries: d.noPoll,
	})
	if !dev.Coldplug() {
		d.log.Debug("not adding device", "handle", ev.Handle)
		return
	}
	res := dev.Refresh()
	if res == device.ResultFailure {
		d.log.Warn("initial refresh failed, not adding device", "handle", ev.Handle)
		return
	}

	e, _ := d.reg.Add(dev)
	d.updateDerived(e)
	if res == device.ResultSuccess {
		d.record(e)
	}
	d.log.Info("device added", "id", e.ID, "handle", ev.Handle, "kind", dev.Props.Kind, "variant", dev.Variant())
	d.pub.DeviceAdded(e.Info())

	if dev.WantsPolling() {
		id := e.ID
		if err := d.sched.Start(id, func() { d.refreshID(id) }); err != nil {
			d.log.Error("could not start polling", "id", id, "err", err)
		}
	}
	d.armRetry(e)

	if dev.Props.Kind == device.KindLinePower {
		d.refreshBatteries()
	}
	d.updateWarningLevel()
}

func (d *Daemon) removeDevice(handle string) {
	e := d.reg.Remove(handle)
	if e == nil {
		d.log.Debug("remove for unknown device", "handle", handle)
		return
	}
	d.sched.Stop(e.ID)
	d.log.Info("device removed", "id", e.ID, "handle", handle)
	d.pub.DeviceRemoved(e.Info())

	// the batteries may be running on their own now
	d.refreshBatteries()
	d.updateWarningLevel()
}

func (d *Daemon) refreshID(id uint64) {
	if e := d.reg.ByID(id); e != nil {
		d.refresh(e)
	}
}

// refresh runs the ordered recompute for one device: refresh, derived
// fields, history, then the daemon-wide warning level.
func (d *Daemon) refresh(e *Entry) {
	if !d.refreshOne(e) {
		return
	}
	if e.Device.Props.Kind == device.KindLinePower {
		d.refreshBatteries()
	}
	d.updateWarningLevel()
}

// refreshOne refreshes a device and publishes the result. It reports
// whether any reading changed.
func (d *Daemon) refreshOne(e *Entry) bool {
	before := e.Device.Props
	res := e.Device.Refresh()
	d.armRetry(e)

	switch res {
	case device.ResultFailure:
		d.log.Debug("refresh failed", "id", e.ID)
		return false
	case device.ResultNoChange:
		return false
	case device.ResultNoData:
		if e.Device.Props == before {
			return false
		}
	}

	d.updateDerived(e)
	if res == device.ResultSuccess {
		d.record(e)
	}
	d.pub.DeviceChanged(e.Info())
	return true
}

// refreshBatteries refreshes every battery that feeds the system.
func (d *Daemon) refreshBatteries() {
	for _, e := range d.reg.Snapshot() {
		if e.Device.Variant() == device.VariantBattery {
			d.refreshOne(e)
		}
	}
}

func (d *Daemon) armRetry(e *Entry) {
	if e.Device.WantsFastRetry() {
		id := e.ID
		d.sched.Retry(id, func() { d.refreshID(id) })
		return
	}
	d.sched.CancelRetry(e.ID)
}

// updateDerived recomputes the warning level and icon of a device. It
// reports whether either changed.
func (d *Daemon) updateDerived(e *Entry) bool {
	p := &e.Device.Props
	changed := false
	if level := policy.DeviceLevel(*p, d.thresholds); level != p.WarningLevel {
		p.WarningLevel = level
		changed = true
		d.sched.NotifyLevel(e.ID)
	}
	if icon := device.IconName(*p); icon != p.IconName {
		p.IconName = icon
		changed = true
	}
	return changed
}

func (d *Daemon) record(e *Entry) {
	p := e.Device.Props
	if d.store == nil || !p.HasHistory {
		return
	}
	if err := d.store.Record(device.HistoryID(p), p, d.clock.Now().Unix()); err != nil {
		d.log.Warn("could not record history", "id", e.ID, "err", err)
	}
}

// updateWarningLevel refolds the display device and recomputes the
// daemon-wide state from it.
func (d *Daemon) updateWarningLevel() {
	entries := d.reg.Snapshot()
	props := make([]device.Properties, 0, len(entries))
	onAC, discharging := false, false
	for _, e := range entries {
		p := e.Device.Props
		props = append(props, p)
		switch {
		case p.Kind == device.KindLinePower && p.Online:
			onAC = true
		case p.Kind == device.KindBattery && p.PowerSupply && p.IsPresent && p.State == device.StateDischarging:
			discharging = true
		}
	}

	display := &d.display.Props
	changed := Compose(props).apply(d.display, uint64(d.clock.Now().Unix()))

	level := policy.DisplayLevel(*display, onAC, d.thresholds)
	if level != display.WarningLevel {
		display.WarningLevel = level
		changed = true
	}
	if icon := device.IconName(*display); icon != display.IconName {
		display.IconName = icon
		changed = true
	}
	if changed {
		d.pub.DisplayChanged(*display)
	}

	status := Status{OnBattery: discharging && !onAC, WarningLevel: level}
	if status == d.status {
		return
	}
	if status.WarningLevel != d.status.WarningLevel {
		d.log.Info("warning level changed", "from", d.status.WarningLevel, "to", status.WarningLevel)
		d.action.Update(status.WarningLevel)
	}
	if status.OnBattery != d.status.OnBattery {
		d.log.Info("power source changed", "on_battery", status.OnBattery)
	}
	d.status = status
	d.pub.StatusChanged(status)
}
