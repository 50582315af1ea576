package collector

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/mdlayher/kobject"
)

// maxReceiveFailures bounds consecutive unreadable messages before the
// monitor gives up and leaves the devices to polling.
const maxReceiveFailures = 10

// UEventMonitor listens for kernel power supply events.
type UEventMonitor struct {
	client    *kobject.Client
	src       *SysfsSource
	log       *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewUEventMonitor subscribes to kernel uevents. Events are reported with
// handles of src.
func NewUEventMonitor(src *SysfsSource, logger *slog.Logger) (*UEventMonitor, error) {
	c, err := kobject.New()
	if err != nil {
		return nil, fmt.Errorf("open uevent socket: %w", err)
	}
	return &UEventMonitor{client: c, src: src, log: logger}, nil
}

// Run forwards power supply events to out until ctx is done.
func (m *UEventMonitor) Run(ctx context.Context, out chan<- Event) error {
	// closing the socket unblocks Receive
	stop := context.AfterFunc(ctx, func() { m.Close() })
	defer stop()

	failures := 0
	for {
		kev, err := m.client.Receive()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			failures++
			if failures >= maxReceiveFailures {
				return fmt.Errorf("receive uevent: %w", err)
			}
			m.log.Debug("skip uevent", "err", err)
			continue
		}
		failures = 0

		ev, ok := m.translate(kev)
		if !ok {
			continue
		}
		m.log.Debug("uevent", "action", ev.Action, "handle", ev.Handle, "seq", kev.Sequence)
		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *UEventMonitor) translate(kev *kobject.Event) (Event, bool) {
	if kev == nil || kev.Subsystem != "power_supply" {
		return Event{}, false
	}
	var action Action
	switch kev.Action {
	case kobject.Add:
		action = ActionAdd
	case kobject.Remove:
		action = ActionRemove
	case kobject.Change:
		action = ActionChange
	default:
		return Event{}, false
	}
	return Event{
		Action: action,
		Handle: m.src.Handle(kev.Subsystem, filepath.Base(kev.DevicePath)),
		Source: m.src,
	}, true
}

// Close closes the socket. It is safe to call more than once.
func (m *UEventMonitor) Close() error {
	m.closeOnce.Do(func() { m.closeErr = m.client.Close() })
	return m.closeErr
}
