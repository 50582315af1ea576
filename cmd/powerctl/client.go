package main

import (
	"fmt"
	"sort"
	"strings"

	godbus "github.com/godbus/dbus/v5"
)

const (
	dbusName    = "org.freedesktop.UPower"
	dbusPath    = "/org/freedesktop/UPower"
	dbusIface   = "org.freedesktop.UPower"
	deviceIface = "org.freedesktop.UPower.Device"
	powerdIface = "io.github.cptspacemanspiff.Powerd"
	propsGetAll = "org.freedesktop.DBus.Properties.GetAll"
)

type historyItem struct {
	Time  uint32
	Value float64
	State uint32
}

type statsItem struct {
	Value    float64
	Accuracy float64
}

type sleepItem struct {
	SleepTime int64
	WakeTime  int64
	Type      string
}

type dbusClient struct {
	conn *godbus.Conn
	obj  godbus.BusObject
}

func newDBusClient() (*dbusClient, error) {
	conn, err := godbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	obj := conn.Object(dbusName, dbusPath)
	return &dbusClient{conn: conn, obj: obj}, nil
}

func (c *dbusClient) EnumerateDevices() ([]godbus.ObjectPath, error) {
	var paths []godbus.ObjectPath
	if err := c.obj.Call(dbusIface+".EnumerateDevices", 0).Store(&paths); err != nil {
		return nil, err
	}
	return paths, nil
}

func (c *dbusClient) DisplayDevice() (godbus.ObjectPath, error) {
	var path godbus.ObjectPath
	err := c.obj.Call(dbusIface+".GetDisplayDevice", 0).Store(&path)
	return path, err
}

func (c *dbusClient) CriticalAction() (string, error) {
	var action string
	err := c.obj.Call(dbusIface+".GetCriticalAction", 0).Store(&action)
	return action, err
}

func (c *dbusClient) DaemonProperties() (map[string]godbus.Variant, error) {
	return c.properties(c.obj, dbusIface)
}

func (c *dbusClient) DeviceProperties(path godbus.ObjectPath) (map[string]godbus.Variant, error) {
	return c.properties(c.conn.Object(dbusName, path), deviceIface)
}

func (c *dbusClient) properties(obj godbus.BusObject, iface string) (map[string]godbus.Variant, error) {
	var props map[string]godbus.Variant
	if err := obj.Call(propsGetAll, 0, iface).Store(&props); err != nil {
		return nil, err
	}
	return props, nil
}

func (c *dbusClient) GetHistory(path godbus.ObjectPath, typ string, timespan, resolution uint32) ([]historyItem, error) {
	var items []historyItem
	err := c.conn.Object(dbusName, path).Call(deviceIface+".GetHistory", 0, typ, timespan, resolution).Store(&items)
	return items, err
}

func (c *dbusClient) GetStatistics(path godbus.ObjectPath, typ string) ([]statsItem, error) {
	var items []statsItem
	err := c.conn.Object(dbusName, path).Call(deviceIface+".GetStatistics", 0, typ).Store(&items)
	return items, err
}

// resolveDevice accepts a full object path or any unique suffix of one,
// such as "BAT0" or "battery_BAT0".
func resolveDevice(paths []godbus.ObjectPath, name string) (godbus.ObjectPath, error) {
	var matches []godbus.ObjectPath
	for _, p := range paths {
		if string(p) == name {
			return p, nil
		}
		if strings.HasSuffix(string(p), name) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no device matches %q", name)
	case 1:
		return matches[0], nil
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })
	return "", fmt.Errorf("%q is ambiguous: %v", name, matches)
}

func (c *dbusClient) SleepEvents(from, to int64) ([]sleepItem, error) {
	var items []sleepItem
	err := c.obj.Call(powerdIface+".GetSleepEvents", 0, from, to).Store(&items)
	return items, err
}
