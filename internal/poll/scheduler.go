// Package poll schedules periodic device refreshes whose cadence follows the
// device's warning level.
package poll

import (
	"errors"
	"log/slog"
	"time"

	"github.com/cptspacemanspiff/powerd/internal/clock"
	"github.com/cptspacemanspiff/powerd/internal/device"
)

const (
	// ShortInterval is used while a device is discharging or worse.
	ShortInterval = 30 * time.Second
	// LongInterval is used otherwise.
	LongInterval = 120 * time.Second
)

// ErrAlreadyPolling is returned by Start for a device that already has an
// entry.
var ErrAlreadyPolling = errors.New("device is already polled")

// LevelFunc resolves a device id to its current warning level. ok is false
// once the device no longer exists.
type LevelFunc func(id uint64) (level device.Level, ok bool)

type entry struct {
	id         uint64
	cb         func()
	interval   time.Duration
	timer      clock.Timer
	gen        uint64
	subscribed bool
}

type retry struct {
	timer clock.Timer
	gen   uint64
}

// Scheduler owns one recurring timer per polled device plus the optional
// one-shot fast retry. All methods must be called from the daemon's event
// loop; timer callbacks are marshalled back onto it through post.
type Scheduler struct {
	clock clock.Clock
	post  func(func())
	level LevelFunc
	log   *slog.Logger

	entries map[uint64]*entry
	retries map[uint64]*retry
	paused  bool
	gen     uint64
}

// New returns an empty, running scheduler.
func New(c clock.Clock, post func(func()), level LevelFunc, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		clock:   c,
		post:    post,
		level:   level,
		log:     log,
		entries: make(map[uint64]*entry),
		retries: make(map[uint64]*retry),
	}
}

// IntervalFor returns the poll interval for a warning level.
func IntervalFor(level device.Level) time.Duration {
	if level >= device.LevelDischarging {
		return ShortInterval
	}
	return LongInterval
}

// Start begins polling id, calling cb on every tick.
func (s *Scheduler) Start(id uint64, cb func()) error {
	if _, ok := s.entries[id]; ok {
		s.log.Warn("already polling device", "id", id)
		return ErrAlreadyPolling
	}
	e := &entry{id: id, cb: cb}
	s.entries[id] = e
	if !s.paused {
		e.subscribed = true
		s.arm(e)
	}
	return nil
}

// Stop cancels polling of id, including any pending fast retry. It is safe
// to call for a device that is not polled.
func (s *Scheduler) Stop(id uint64) {
	s.CancelRetry(id)
	e, ok := s.entries[id]
	if !ok {
		return
	}
	s.disarm(e)
	e.subscribed = false
	delete(s.entries, id)
}

// Pause cancels every timer without forgetting the entries.
func (s *Scheduler) Pause() {
	if s.paused {
		return
	}
	s.paused = true
	for _, e := range s.entries {
		s.disarm(e)
		e.subscribed = false
	}
	for id := range s.retries {
		s.CancelRetry(id)
	}
	s.log.Debug("polling paused", "entries", len(s.entries))
}

// Resume re-arms every entry with an interval computed now.
func (s *Scheduler) Resume() {
	if !s.paused {
		return
	}
	s.paused = false
	for id, e := range s.entries {
		if _, ok := s.level(id); !ok {
			delete(s.entries, id)
			continue
		}
		e.subscribed = true
		s.arm(e)
	}
	s.log.Debug("polling resumed", "entries", len(s.entries))
}

// Paused reports whether Pause is in effect.
func (s *Scheduler) Paused() bool { return s.paused }

// NotifyLevel must be called when the warning level of id changes. A
// subscribed entry is stopped and started again so it picks up the new
// interval.
func (s *Scheduler) NotifyLevel(id uint64) {
	e, ok := s.entries[id]
	if !ok || !e.subscribed {
		return
	}
	cb := e.cb
	s.Stop(id)
	_ = s.Start(id, cb)
}

// Retry arms a one-shot call of cb after device.RetryDelay, replacing any
// retry already pending for id. Nothing is armed while paused.
func (s *Scheduler) Retry(id uint64, cb func()) {
	if s.paused {
		return
	}
	s.CancelRetry(id)
	s.gen++
	gen := s.gen
	r := &retry{gen: gen}
	s.retries[id] = r
	r.timer = s.clock.AfterFunc(device.RetryDelay, func() {
		s.post(func() {
			cur, ok := s.retries[id]
			if !ok || cur.gen != gen {
				return
			}
			delete(s.retries, id)
			if _, alive := s.level(id); !alive {
				return
			}
			cb()
		})
	})
}

// CancelRetry drops the pending fast retry for id, if any.
func (s *Scheduler) CancelRetry(id uint64) {
	r, ok := s.retries[id]
	if !ok {
		return
	}
	r.timer.Stop()
	delete(s.retries, id)
}

// Interval returns the interval of the armed timer for id, or 0.
func (s *Scheduler) Interval(id uint64) time.Duration {
	if e, ok := s.entries[id]; ok && e.timer != nil {
		return e.interval
	}
	return 0
}

// Active returns the number of armed recurring timers.
func (s *Scheduler) Active() int {
	n := 0
	for _, e := range s.entries {
		if e.timer != nil {
			n++
		}
	}
	return n
}

// Polled reports whether id has an entry, armed or not.
func (s *Scheduler) Polled(id uint64) bool {
	_, ok := s.entries[id]
	return ok
}

func (s *Scheduler) arm(e *entry) {
	level, ok := s.level(e.id)
	if !ok {
		delete(s.entries, e.id)
		return
	}
	e.interval = IntervalFor(level)
	s.schedule(e)
}

func (s *Scheduler) schedule(e *entry) {
	s.gen++
	e.gen = s.gen
	gen := s.gen
	id := e.id
	e.timer = s.clock.AfterFunc(e.interval, func() {
		s.post(func() { s.fire(id, gen) })
	})
}

func (s *Scheduler) disarm(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen = 0
}

func (s *Scheduler) fire(id uint64, gen uint64) {
	e, ok := s.entries[id]
	if !ok || e.gen != gen || e.timer == nil {
		return
	}
	e.timer = nil
	if _, alive := s.level(id); !alive {
		s.Stop(id)
		return
	}

	s.log.Debug("polling device", "id", id, "interval", e.interval)
	e.cb()

	// the callback may have restarted or stopped this entry
	if cur, ok := s.entries[id]; ok && cur == e && e.timer == nil && !s.paused {
		s.schedule(e)
	}
}
