// Package testutil provides in-memory fakes for the reconciler's
// collaborators: NetworkManager, the firewall applier, device enumeration,
// and systemd control. The fakes keep enough state that multi-step flows
// (activate, reclassify, tear down) behave like the real system.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/fieldkit/hotspotd/internal/nm"
)

// FakeProfile is one stored connection profile.
type FakeProfile struct {
	Name     string
	Type     string
	Iface    string
	SSID     string
	Password string
	Channel  int
	Props    map[string]string
	Active   bool
}

// FakeNM is an in-memory NetworkManager. Device rows carry the adapter
// inventory; active state comes from the profile map, so activating a
// profile flips its device to connected the way the real daemon reports
// it. Seed active connections through profiles, not device rows.
type FakeNM struct {
	mu       sync.Mutex
	profiles map[string]*FakeProfile
	devices  []nm.DeviceStatus

	// Calls records mutating operations in order, e.g. "down HomeNet".
	Calls []string

	// Fail* make the matching method return the given error.
	FailAdd    error
	FailModify error
	FailUp     error
	FailDown   error
	FailDelete error

	// Fn overrides replace the default read behavior entirely.
	DevicesFn     func(ctx context.Context) ([]nm.DeviceStatus, error)
	ConnectionsFn func(ctx context.Context) ([]nm.Connection, error)
}

// NewFakeNM creates a FakeNM with the given device inventory.
func NewFakeNM(devices ...nm.DeviceStatus) *FakeNM {
	return &FakeNM{
		profiles: make(map[string]*FakeProfile),
		devices:  devices,
	}
}

// WiFiDevice returns a disconnected WiFi device row.
func WiFiDevice(name string) nm.DeviceStatus {
	return nm.DeviceStatus{Device: name, Type: nm.TypeWiFiDevice, State: nm.StateDisconnected}
}

// AddDevice adds a device row to the inventory.
func (f *FakeNM) AddDevice(d nm.DeviceStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, d)
}

// AddProfile seeds a stored profile.
func (f *FakeNM) AddProfile(p FakeProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Props == nil {
		p.Props = make(map[string]string)
	}
	f.profiles[p.Name] = &p
}

// Profile returns a copy of the named profile.
func (f *FakeNM) Profile(name string) (FakeProfile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[name]
	if !ok {
		return FakeProfile{}, false
	}
	return *p, true
}

// ProfileCount returns the number of stored profiles.
func (f *FakeNM) ProfileCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.profiles)
}

// CallLog returns a copy of the recorded mutating calls.
func (f *FakeNM) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

func (f *FakeNM) Devices(ctx context.Context) ([]nm.DeviceStatus, error) {
	if f.DevicesFn != nil {
		return f.DevicesFn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]nm.DeviceStatus, len(f.devices))
	copy(out, f.devices)
	for i, d := range out {
		for _, p := range f.profiles {
			if p.Active && p.Iface == d.Device {
				out[i].State = nm.StateConnected
				out[i].Connection = p.Name
			}
		}
	}
	return out, nil
}

func (f *FakeNM) Connections(ctx context.Context) ([]nm.Connection, error) {
	if f.ConnectionsFn != nil {
		return f.ConnectionsFn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []nm.Connection
	for _, p := range f.profiles {
		c := nm.Connection{Name: p.Name, Type: p.Type}
		if p.Active {
			c.Device = p.Iface
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FakeNM) AddHotspot(ctx context.Context, p nm.HotspotParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "add "+p.Name)
	if f.FailAdd != nil {
		return f.FailAdd
	}
	f.profiles[p.Name] = &FakeProfile{
		Name:     p.Name,
		Type:     nm.TypeWiFiConnection,
		Iface:    p.Iface,
		SSID:     p.SSID,
		Password: p.Password,
		Channel:  p.Channel,
		Props:    make(map[string]string),
	}
	return nil
}

func (f *FakeNM) Modify(ctx context.Context, name string, props map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "modify "+name)
	if f.FailModify != nil {
		return f.FailModify
	}
	p, ok := f.profiles[name]
	if !ok {
		return notFoundErr("modify", name)
	}
	for k, v := range props {
		p.Props[k] = v
	}
	return nil
}

func (f *FakeNM) Property(ctx context.Context, name, property string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[name]
	if !ok {
		return "", notFoundErr("show", name)
	}
	switch property {
	case "802-11-wireless.ssid":
		return p.SSID, nil
	case "802-11-wireless.channel":
		return strconv.Itoa(p.Channel), nil
	default:
		return p.Props[property], nil
	}
}

func (f *FakeNM) Up(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "up "+name)
	if f.FailUp != nil {
		return f.FailUp
	}
	p, ok := f.profiles[name]
	if !ok {
		return notFoundErr("up", name)
	}
	// One active profile per device, like the real daemon.
	for _, other := range f.profiles {
		if other.Iface == p.Iface {
			other.Active = false
		}
	}
	p.Active = true
	return nil
}

func (f *FakeNM) Down(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "down "+name)
	if f.FailDown != nil {
		return f.FailDown
	}
	p, ok := f.profiles[name]
	if !ok || !p.Active {
		return notFoundErr("down", name)
	}
	p.Active = false
	return nil
}

func (f *FakeNM) Delete(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "delete "+name)
	if f.FailDelete != nil {
		return f.FailDelete
	}
	if _, ok := f.profiles[name]; !ok {
		return notFoundErr("delete", name)
	}
	delete(f.profiles, name)
	return nil
}

// notFoundErr mimics nmcli's exit 10 for a missing or inactive connection.
func notFoundErr(op, name string) error {
	return &nm.CmdError{
		Args:   []string{"connection", op, name},
		Code:   10,
		Stderr: fmt.Sprintf("Error: unknown connection '%s'.", name),
	}
}
