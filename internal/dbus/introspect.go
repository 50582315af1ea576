package dbus

import (
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

const rootXML = `
<node>
  <interface name="` + ifaceName + `">
    <method name="EnumerateDevices">
      <arg direction="out" type="ao" name="devices"/>
    </method>
    <method name="GetDisplayDevice">
      <arg direction="out" type="o" name="device"/>
    </method>
    <method name="GetCriticalAction">
      <arg direction="out" type="s" name="action"/>
    </method>
    <signal name="DeviceAdded">
      <arg type="o" name="device"/>
    </signal>
    <signal name="DeviceRemoved">
      <arg type="o" name="device"/>
    </signal>
    <property name="DaemonVersion" type="s" access="read"/>
    <property name="OnBattery" type="b" access="read"/>
    <property name="LidIsClosed" type="b" access="read"/>
    <property name="LidIsPresent" type="b" access="read"/>
  </interface>
  <interface name="` + powerdIface + `">
    <method name="GetSleepEvents">
      <arg direction="in" type="x" name="from"/>
      <arg direction="in" type="x" name="to"/>
      <arg direction="out" type="a(xxs)" name="events"/>
    </method>
  </interface>
` + prop.IntrospectDataString + introspect.IntrospectDataString + `
</node>`

const deviceXML = `
<node>
  <interface name="` + deviceIface + `">
    <method name="Refresh"/>
    <method name="GetHistory">
      <arg direction="in" type="s" name="type"/>
      <arg direction="in" type="u" name="timespan"/>
      <arg direction="in" type="u" name="resolution"/>
      <arg direction="out" type="a(udu)" name="data"/>
    </method>
    <method name="GetStatistics">
      <arg direction="in" type="s" name="type"/>
      <arg direction="out" type="a(dd)" name="data"/>
    </method>
    <property name="NativePath" type="s" access="read"/>
    <property name="Vendor" type="s" access="read"/>
    <property name="Model" type="s" access="read"/>
    <property name="Serial" type="s" access="read"/>
    <property name="UpdateTime" type="t" access="read"/>
    <property name="Type" type="u" access="read"/>
    <property name="PowerSupply" type="b" access="read"/>
    <property name="HasHistory" type="b" access="read"/>
    <property name="HasStatistics" type="b" access="read"/>
    <property name="Online" type="b" access="read"/>
    <property name="Energy" type="d" access="read"/>
    <property name="EnergyEmpty" type="d" access="read"/>
    <property name="EnergyFull" type="d" access="read"/>
    <property name="EnergyFullDesign" type="d" access="read"/>
    <property name="EnergyRate" type="d" access="read"/>
    <property name="Voltage" type="d" access="read"/>
    <property name="TimeToEmpty" type="x" access="read"/>
    <property name="TimeToFull" type="x" access="read"/>
    <property name="Percentage" type="d" access="read"/>
    <property name="Temperature" type="d" access="read"/>
    <property name="IsPresent" type="b" access="read"/>
    <property name="State" type="u" access="read"/>
    <property name="IsRechargeable" type="b" access="read"/>
    <property name="Capacity" type="d" access="read"/>
    <property name="Technology" type="u" access="read"/>
    <property name="WarningLevel" type="u" access="read"/>
    <property name="BatteryLevel" type="u" access="read"/>
    <property name="IconName" type="s" access="read"/>
  </interface>
` + prop.IntrospectDataString + introspect.IntrospectDataString + `
</node>`
