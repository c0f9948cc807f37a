package hotspot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fieldkit/hotspotd/internal/fw"
	"github.com/fieldkit/hotspotd/internal/nm"
	"github.com/fieldkit/hotspotd/internal/svc"
)

// Role strings reported per WiFi adapter.
const (
	RoleSTA         = "sta"
	RoleHotspot     = "hotspot"
	RoleCandidate   = "ap-candidate"
	RoleUnavailable = "unavailable"
)

// StatusSnapshot aggregates everything the status subcommand reports.
// Building one never mutates system state.
type StatusSnapshot struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Devices     []DeviceReport     `json:"devices"`
	Connections []ConnectionReport `json:"connections,omitempty"`
	Hotspot     *HotspotReport     `json:"hotspot,omitempty"`
	IPForward   bool               `json:"ip_forward"`
	Firewall    []RuleReport       `json:"firewall,omitempty"`
	MDNS        ServiceReport      `json:"mdns"`
	Probes      []ProbeReport      `json:"probes,omitempty"`
}

// DeviceReport is one WiFi adapter with its derived role.
type DeviceReport struct {
	Name       string   `json:"name"`
	Bus        string   `json:"bus"`
	Role       string   `json:"role"`
	State      string   `json:"state,omitempty"`
	Connection string   `json:"connection,omitempty"`
	Addresses  []string `json:"addresses,omitempty"`
}

// ConnectionReport is one saved NetworkManager profile.
type ConnectionReport struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Device string `json:"device,omitempty"`
	Active bool   `json:"active"`
}

// HotspotReport describes the active hotspot profile.
type HotspotReport struct {
	Interface string   `json:"interface"`
	SSID      string   `json:"ssid,omitempty"`
	Channel   string   `json:"channel,omitempty"`
	Subnet    string   `json:"subnet,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

// RuleReport is one installed firewall rule.
type RuleReport struct {
	Kind    string `json:"kind"`
	APIface string `json:"ap_interface,omitempty"`
	Uplink  string `json:"uplink"`
	Subnet  string `json:"subnet,omitempty"`
}

// ServiceReport is a systemd unit health line.
type ServiceReport struct {
	Unit   string `json:"unit"`
	Active bool   `json:"active"`
}

// ProbeReport is a TCP reachability check for a collaborating service.
type ProbeReport struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
	Open bool   `json:"open"`
}

// Report builds a status snapshot from live system state. Collaborator
// failures that only degrade the report (firewall listing without
// privileges, a probe target that is down) are logged and leave their
// section empty; enumeration failures are real errors.
func (r *Reconciler) Report(ctx context.Context, probes map[string]string) (*StatusSnapshot, error) {
	l := r.ctxLogger(ctx)
	snap := &StatusSnapshot{GeneratedAt: time.Now().UTC()}

	devices, err := r.devs.Wireless()
	if err != nil {
		return nil, fmt.Errorf("status: enumerate wireless devices: %w", err)
	}
	statuses, err := r.nm.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("status: device status: %w", err)
	}
	conns, err := r.nm.Connections(ctx)
	if err != nil {
		return nil, fmt.Errorf("status: list connections: %w", err)
	}

	stateByName := make(map[string]nm.DeviceStatus, len(statuses))
	for _, s := range statuses {
		if s.Type == nm.TypeWiFiDevice {
			stateByName[s.Device] = s
		}
	}

	var hotspotIf string
	for _, d := range devices {
		rep := DeviceReport{Name: d.Name, Bus: string(d.Bus), Role: RoleCandidate}
		if s, ok := stateByName[d.Name]; ok {
			rep.State = s.State
			rep.Connection = s.Connection
			switch {
			case s.State == nm.StateConnected && s.Connection == HotspotProfile:
				rep.Role = RoleHotspot
				hotspotIf = d.Name
			case s.State == nm.StateConnected:
				rep.Role = RoleSTA
			case s.State == nm.StateUnavailable || s.State == nm.StateUnmanaged:
				rep.Role = RoleUnavailable
			}
		}
		if addrs, err := r.devs.Addresses(d.Name); err == nil {
			rep.Addresses = addrs
		}
		snap.Devices = append(snap.Devices, rep)
	}

	for _, c := range conns {
		snap.Connections = append(snap.Connections, ConnectionReport{
			Name:   c.Name,
			Type:   c.Type,
			Device: c.Device,
			Active: c.Device != "",
		})
	}

	if hotspotIf != "" {
		hr := &HotspotReport{Interface: hotspotIf}
		if ssid, err := r.nm.Property(ctx, HotspotProfile, "802-11-wireless.ssid"); err == nil {
			hr.SSID = ssid
		} else {
			l.Warn("hotspot_ssid_read_failed", "error", err, "operation", "status")
		}
		if channel, err := r.nm.Property(ctx, HotspotProfile, "802-11-wireless.channel"); err == nil {
			hr.Channel = channel
		}
		if addrs, err := r.devs.Addresses(hotspotIf); err == nil {
			hr.Addresses = addrs
			for _, a := range addrs {
				if subnet, ok := subnetOf(a); ok {
					hr.Subnet = subnet
					break
				}
			}
		}
		snap.Hotspot = hr
	}

	rules, err := r.fw.Active()
	if err != nil {
		l.Warn("firewall_list_failed", "error", err, "operation", "status")
	}
	for _, rule := range rules {
		snap.Firewall = append(snap.Firewall, RuleReport{
			Kind:    string(rule.Kind),
			APIface: rule.APIface,
			Uplink:  rule.Uplink,
			Subnet:  rule.Subnet,
		})
	}

	if on, err := fw.IPForwardEnabled(r.procIPForward); err == nil {
		snap.IPForward = on
	} else {
		l.Warn("ip_forward_read_failed", "error", err, "operation", "status")
	}

	active, err := r.sys.IsActive(ctx, r.mdnsUnit)
	if err != nil {
		l.Warn("mdns_check_failed", "error", err, "unit", r.mdnsUnit, "operation", "status")
	}
	snap.MDNS = ServiceReport{Unit: r.mdnsUnit, Active: active}

	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		addr := probes[name]
		snap.Probes = append(snap.Probes, ProbeReport{
			Name: name,
			Addr: addr,
			Open: svc.ProbeTCP(addr, svc.ProbeTimeout),
		})
	}

	return snap, nil
}

// Text renders the snapshot for humans.
func (s *StatusSnapshot) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "hotspotd status at %s\n\n", s.GeneratedAt.Format(time.RFC3339))

	b.WriteString("devices:\n")
	tw := tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
	for _, d := range s.Devices {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			d.Name, d.Bus, d.Role, d.State, d.Connection, strings.Join(d.Addresses, ","))
	}
	tw.Flush()
	if len(s.Devices) == 0 {
		b.WriteString("  (no WiFi adapters)\n")
	}

	b.WriteString("\nhotspot:\n")
	if s.Hotspot == nil {
		b.WriteString("  not active\n")
	} else {
		fmt.Fprintf(&b, "  interface %s ssid %q", s.Hotspot.Interface, s.Hotspot.SSID)
		if s.Hotspot.Channel != "" {
			fmt.Fprintf(&b, " channel %s", s.Hotspot.Channel)
		}
		if s.Hotspot.Subnet != "" {
			fmt.Fprintf(&b, " subnet %s", s.Hotspot.Subnet)
		}
		b.WriteByte('\n')
	}

	b.WriteString("\nforwarding:\n")
	fmt.Fprintf(&b, "  ip_forward %s\n", onOff(s.IPForward))
	for _, r := range s.Firewall {
		switch r.Kind {
		case string(fw.RuleMasquerade):
			fmt.Fprintf(&b, "  masquerade %s via %s\n", r.Subnet, r.Uplink)
		case string(fw.RuleForward):
			fmt.Fprintf(&b, "  forward %s -> %s accept\n", r.APIface, r.Uplink)
		case string(fw.RuleReturn):
			fmt.Fprintf(&b, "  forward %s -> %s established,related accept\n", r.Uplink, r.APIface)
		}
	}
	if len(s.Firewall) == 0 {
		b.WriteString("  no rules installed\n")
	}

	b.WriteString("\nservices:\n")
	fmt.Fprintf(&b, "  %s %s\n", s.MDNS.Unit, activeInactive(s.MDNS.Active))
	for _, p := range s.Probes {
		fmt.Fprintf(&b, "  %s %s %s\n", p.Name, p.Addr, openClosed(p.Open))
	}

	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func activeInactive(v bool) string {
	if v {
		return "active"
	}
	return "inactive"
}

func openClosed(v bool) string {
	if v {
		return "open"
	}
	return "closed"
}
