package collector

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/godbus/dbus/v5"
)

const (
	logindService = "org.freedesktop.login1"
	logindPath    = "/org/freedesktop/login1"
	logindManager = "org.freedesktop.login1.Manager"
)

// Logind talks to systemd-logind: sleep notifications, the delay inhibitor
// that holds suspend until polling is paused, and the critical power
// actions.
type Logind struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	log     *slog.Logger
	inhibit *os.File
}

// NewLogind returns a client on conn, normally the system bus.
func NewLogind(conn *dbus.Conn, logger *slog.Logger) *Logind {
	return &Logind{
		conn: conn,
		obj:  conn.Object(logindService, logindPath),
		log:  logger,
	}
}

// Run calls fn with true when the system is about to sleep and with false
// once it has resumed, until ctx is done.
func (l *Logind) Run(ctx context.Context, fn func(sleeping bool)) error {
	err := l.conn.AddMatchSignal(
		dbus.WithMatchInterface(logindManager),
		dbus.WithMatchMember("PrepareForSleep"),
	)
	if err != nil {
		return fmt.Errorf("match PrepareForSleep: %w", err)
	}

	ch := make(chan *dbus.Signal, 16)
	l.conn.Signal(ch)
	defer l.conn.RemoveSignal(ch)

	for {
		select {
		case sig := <-ch:
			if sig.Name != logindManager+".PrepareForSleep" || len(sig.Body) < 1 {
				continue
			}
			active, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}
			if active {
				l.log.Info("system going to sleep")
			} else {
				l.log.Info("system woke up")
			}
			fn(active)
		case <-ctx.Done():
			return nil
		}
	}
}

// Inhibit takes a delay lock on sleep. It is a no-op while a lock is held.
func (l *Logind) Inhibit() error {
	if l.inhibit != nil {
		return nil
	}
	var fd dbus.UnixFD
	err := l.obj.Call(logindManager+".Inhibit", 0, "sleep", "powerd", "Pause device polling", "delay").Store(&fd)
	if err != nil {
		return fmt.Errorf("inhibit sleep: %w", err)
	}
	l.inhibit = os.NewFile(uintptr(fd), "logind-inhibit")
	l.log.Debug("sleep inhibitor acquired")
	return nil
}

// ReleaseInhibit drops the delay lock, letting the pending sleep proceed.
func (l *Logind) ReleaseInhibit() {
	if l.inhibit == nil {
		return
	}
	if err := l.inhibit.Close(); err != nil {
		l.log.Warn("close inhibitor", "err", err)
	}
	l.inhibit = nil
	l.log.Debug("sleep inhibitor released")
}

// CanHybridSleep reports whether logind allows hybrid sleep without
// further authorization.
func (l *Logind) CanHybridSleep() bool { return l.can("CanHybridSleep") }

// CanHibernate reports whether logind allows hibernation without further
// authorization.
func (l *Logind) CanHibernate() bool { return l.can("CanHibernate") }

func (l *Logind) can(method string) bool {
	var answer string
	if err := l.obj.Call(logindManager+"."+method, 0).Store(&answer); err != nil {
		l.log.Warn("query logind", "method", method, "err", err)
		return false
	}
	return answer == "yes"
}

// Take runs a critical action: HybridSleep, Hibernate or PowerOff.
func (l *Logind) Take(action string) error {
	l.log.Warn("taking critical action", "action", action)
	if err := l.obj.Call(logindManager+"."+action, 0, false).Err; err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}

// LidClosed returns logind's view of the laptop lid. ok is false when the
// property cannot be read.
func (l *Logind) LidClosed() (closed, ok bool) {
	v, err := l.obj.GetProperty(logindManager + ".LidClosed")
	if err != nil {
		return false, false
	}
	closed, ok = v.Value().(bool)
	return closed, ok
}

// Close releases any held inhibitor.
func (l *Logind) Close() {
	l.ReleaseInhibit()
}
