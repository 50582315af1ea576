package daemon

import "github.com/cptspacemanspiff/powerd/internal/device"

// Entry is a registered device. IDs are never reused, so a stale ID held
// by a timer or a client resolves to nothing once the device is gone.
type Entry struct {
	ID     uint64
	Device *device.Device
}

// Info returns a copy safe to hand outside the event loop.
func (e *Entry) Info() DeviceInfo {
	return DeviceInfo{ID: e.ID, Handle: e.Device.Handle, Props: e.Device.Props}
}

// DeviceInfo is a snapshot of one device.
type DeviceInfo struct {
	ID     uint64
	Handle string
	Props  device.Properties
}

// Registry tracks the live devices keyed by native handle. It keeps
// insertion order so that "first device found" rules are deterministic.
type Registry struct {
	byHandle map[string]*Entry
	byID     map[uint64]*Entry
	order    []*Entry
	nextID   uint64
}

func NewRegistry() *Registry {
	return &Registry{
		byHandle: make(map[string]*Entry),
		byID:     make(map[uint64]*Entry),
		nextID:   1,
	}
}

// Add registers dev under its handle. If the handle is already present the
// existing entry is returned with added == false.
func (r *Registry) Add(dev *device.Device) (e *Entry, added bool) {
	if e, ok := r.byHandle[dev.Handle]; ok {
		return e, false
	}
	e = &Entry{ID: r.nextID, Device: dev}
	r.nextID++
	r.byHandle[dev.Handle] = e
	r.byID[e.ID] = e
	r.order = append(r.order, e)
	return e, true
}

// Remove detaches the device with handle and returns it, or nil.
func (r *Registry) Remove(handle string) *Entry {
	e, ok := r.byHandle[handle]
	if !ok {
		return nil
	}
	delete(r.byHandle, handle)
	delete(r.byID, e.ID)
	for i, o := range r.order {
		if o == e {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return e
}

func (r *Registry) Lookup(handle string) *Entry { return r.byHandle[handle] }

func (r *Registry) ByID(id uint64) *Entry { return r.byID[id] }

// Snapshot returns the entries in insertion order. The slice is a copy and
// stays valid while the registry changes.
func (r *Registry) Snapshot() []*Entry {
	out := make([]*Entry, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int { return len(r.order) }
