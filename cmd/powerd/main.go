// Command powerd is a power management daemon. It tracks batteries, line
// power and peripheral batteries and publishes them as
// org.freedesktop.UPower on the system bus.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	godbus "github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/powerd/internal/collector"
	"github.com/cptspacemanspiff/powerd/internal/config"
	"github.com/cptspacemanspiff/powerd/internal/daemon"
	dbussvc "github.com/cptspacemanspiff/powerd/internal/dbus"
	"github.com/cptspacemanspiff/powerd/internal/storage"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the TOML configuration file")
	verbose := flag.Bool("verbose", false, "enable all verbose logging (equivalent to -log=all)")
	logFlag := flag.String("log", "", "comma-separated log topics: device,poll,policy,sleep,source,dbus,storage,config (or 'all')")
	resetDB := flag.Bool("reset-db", false, "delete the history database and exit")
	versioninfo.AddFlag(nil)
	flag.Parse()

	logger := newLogger(os.Stderr, parseTopics(*logFlag, *verbose))
	os.Exit(run(logger, *configPath, *resetDB))
}

func run(logger *slog.Logger, configPath string, resetDB bool) int {
	deviceLog := logger.With("topic", "device")
	pollLog := logger.With("topic", "poll")
	policyLog := logger.With("topic", "policy")
	sleepLog := logger.With("topic", "sleep")
	sourceLog := logger.With("topic", "source")
	dbusLog := logger.With("topic", "dbus")
	storageLog := logger.With("topic", "storage")
	configLog := logger.With("topic", "config")

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		logger.Warn("invalid configuration, using defaults", "path", configPath, "err", err)
		cfg = config.DefaultConfig()
	}
	if cfg.Daemon.EnableWattsUpPro {
		logger.Warn("enable_watts_up_pro is set but the Watts Up Pro meter is not supported")
	}

	dbPath := cfg.Storage.DBPath
	if resetDB {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
				logger.Error("delete database", "err", err)
				return 1
			}
		}
		logger.Info("database deleted", "path", dbPath)
		return 0
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("create data dir", "err", err)
		return 1
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		logger.Error("open database", "err", err)
		return 1
	}
	defer store.Close()

	conn, err := godbus.SystemBus()
	if err != nil {
		logger.Error("connect system bus", "err", err)
		return 1
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logind := collector.NewLogind(conn, sleepLog)
	defer logind.Close()
	sysfs := collector.NewSysfsSource(sourceLog)

	loop := daemon.NewLoop()
	go loop.Run(ctx)

	d := daemon.New(daemon.Options{
		Exec:                 loop,
		Logger:               policyLog,
		DeviceLogger:         deviceLog,
		PollLogger:           pollLog,
		Thresholds:           cfg.Policy.Thresholds(),
		CriticalAction:       cfg.Policy.CriticalPowerAction,
		Power:                logind,
		Store:                store,
		NoPollBatteries:      cfg.Daemon.NoPollBatteries,
		NeedsPollAfterUevent: sysfs.IsMacBook(),
	})
	svc := dbussvc.NewService(d, dbussvc.Options{
		Version:   versioninfo.Short(),
		Lid:       logind,
		IgnoreLid: cfg.Daemon.IgnoreLid,
		Logger:    dbusLog,
	})
	d.SetPublisher(svc)

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", "err", err)
		return 1
	}
	if err := svc.Export(ctx, conn); err != nil {
		logger.Error("export dbus service", "err", err)
		return 1
	}
	logger.Info("D-Bus service registered", "name", "org.freedesktop.UPower", "version", versioninfo.Short())

	events := make(chan collector.Event, 64)
	go func() {
		for {
			select {
			case ev := <-events:
				d.Submit(ev)
			case <-ctx.Done():
				return
			}
		}
	}()

	// listen before coldplug so nothing falls in between; a device seen
	// twice is just refreshed
	monitor, err := collector.NewUEventMonitor(sysfs, sourceLog)
	if err != nil {
		logger.Warn("uevents unavailable, relying on polling", "err", err)
	} else {
		defer monitor.Close()
		go func() {
			if err := monitor.Run(ctx, events); err != nil {
				sourceLog.Error("uevent monitor stopped", "err", err)
			}
		}()
	}

	coldplug, err := sysfs.Coldplug()
	if err != nil {
		logger.Error("coldplug", "err", err)
	}
	for _, ev := range coldplug {
		d.Submit(ev)
	}

	bluez := collector.NewBluezSource(conn, sourceLog)
	go func() {
		if err := bluez.Run(ctx, events); err != nil {
			sourceLog.Warn("bluez source stopped", "err", err)
		}
	}()

	go func() {
		if err := logind.Run(ctx, d.Sleep); err != nil {
			sleepLog.Warn("sleep monitor stopped", "err", err)
		}
	}()

	retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
	interval := time.Duration(cfg.History.CleanupIntervalHours) * time.Hour
	go store.RunCleanup(ctx, retention, interval, storageLog)

	watcher, err := config.NewWatcher(configPath, config.DefaultWatchDebounce,
		func(c *config.Config) {
			configLog.Info("configuration reloaded", "path", configPath)
			d.SetThresholds(c.Policy.Thresholds(), c.Policy.CriticalPowerAction)
		},
		func(err error) {
			configLog.Warn("configuration reload failed, keeping current policy", "err", err)
		})
	if err != nil {
		logger.Warn("configuration watcher unavailable", "err", err)
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	logger.Info("powerd started", "devices", len(coldplug))
	<-ctx.Done()
	logger.Info("shutting down")
	return 0
}
