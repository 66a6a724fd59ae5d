// Package device probes the host for the telemetry attached to attendance
// events: battery level, network class and coarse internet reachability.
package device

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cechriza/marcaje/internal/model"
)

// Probe captures a telemetry snapshot. Implementations are best-effort and
// must never fail the capture pipeline.
type Probe interface {
	Snapshot(ctx context.Context) model.Telemetry
}

// Signal strength bucket (0-4). The host probe has no radio to measure,
// so it reports the top bucket.
const defaultSignalBucket = 4

// HostProbe reads telemetry from the local system.
type HostProbe struct {
	// ReachAddr is dialed (TCP, short timeout) to decide internet reachability.
	ReachAddr string
	// ReachTimeout bounds the reachability dial.
	ReachTimeout time.Duration
}

// NewHostProbe constructs a probe with the default reachability target.
func NewHostProbe() *HostProbe {
	return &HostProbe{ReachAddr: "1.1.1.1:443", ReachTimeout: 800 * time.Millisecond}
}

// Snapshot gathers the current device state. Unreadable values degrade to
// zero/unknown rather than erroring.
func (p *HostProbe) Snapshot(ctx context.Context) model.Telemetry {
	return model.Telemetry{
		DeviceModel: deviceModel(),
		Battery:     batteryPercent(),
		Signal:      defaultSignalBucket,
		Network:     networkClass(),
		Online:      p.online(ctx),
	}
}

func (p *HostProbe) online(ctx context.Context) bool {
	d := net.Dialer{Timeout: p.ReachTimeout}
	conn, err := d.DialContext(ctx, "tcp", p.ReachAddr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// batteryPercent reads the first power supply exposing a capacity; hosts
// without one (desktops, containers) report 0.
func batteryPercent() int {
	entries, err := os.ReadDir("/sys/class/power_supply")
	if err != nil {
		return 0
	}
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join("/sys/class/power_supply", e.Name(), "capacity"))
		if err != nil {
			continue
		}
		if v, err := strconv.Atoi(strings.TrimSpace(string(b))); err == nil {
			return v
		}
	}
	return 0
}

func deviceModel() string {
	if b, err := os.ReadFile("/sys/devices/virtual/dmi/id/product_name"); err == nil {
		if s := strings.TrimSpace(string(b)); s != "" {
			return s
		}
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// networkClass labels the first up, non-loopback interface by name.
func networkClass() model.NetworkClass {
	ifaces, err := net.Interfaces()
	if err != nil {
		return model.NetworkNone
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		name := strings.ToLower(ifc.Name)
		switch {
		case strings.HasPrefix(name, "wl"):
			return model.NetworkWifi
		case strings.HasPrefix(name, "wwan"), strings.HasPrefix(name, "rmnet"), strings.HasPrefix(name, "ppp"):
			return model.NetworkCellular
		default:
			return model.NetworkOther
		}
	}
	return model.NetworkNone
}

// Static is a fixed-value probe for tests and offline operation.
type Static struct {
	T model.Telemetry
}

// Snapshot returns the configured telemetry unchanged.
func (s Static) Snapshot(context.Context) model.Telemetry { return s.T }
