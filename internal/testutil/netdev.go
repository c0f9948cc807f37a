package testutil

import (
	"fmt"
	"sync"

	"github.com/fieldkit/hotspotd/internal/netdev"
)

// FakeEnumerator serves a fixed device inventory. Devs lists WiFi adapters;
// Links lists additional plain interfaces that merely exist. Interfaces
// without an Addrs entry report no addresses, the state of a freshly
// activated AP before shared-mode addressing lands.
type FakeEnumerator struct {
	mu    sync.Mutex
	Devs  []netdev.Device
	Links []string
	Addrs map[string][]string

	WirelessErr error
	ExistsErr   error
}

// USBWiFi returns a USB-attached WiFi device.
func USBWiFi(name string) netdev.Device {
	return netdev.Device{Name: name, Wireless: true, Bus: netdev.BusUSB}
}

// PCIWiFi returns a built-in PCI WiFi device.
func PCIWiFi(name string) netdev.Device {
	return netdev.Device{Name: name, Wireless: true, Bus: netdev.BusPCI}
}

// SetAddrs assigns addresses to an interface mid-test.
func (f *FakeEnumerator) SetAddrs(name string, addrs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Addrs == nil {
		f.Addrs = make(map[string][]string)
	}
	f.Addrs[name] = addrs
}

func (f *FakeEnumerator) Wireless() ([]netdev.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WirelessErr != nil {
		return nil, f.WirelessErr
	}
	out := make([]netdev.Device, len(f.Devs))
	copy(out, f.Devs)
	return out, nil
}

func (f *FakeEnumerator) Exists(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ExistsErr != nil {
		return false, f.ExistsErr
	}
	for _, d := range f.Devs {
		if d.Name == name {
			return true, nil
		}
	}
	for _, l := range f.Links {
		if l == name {
			return true, nil
		}
	}
	return false, nil
}

func (f *FakeEnumerator) Addresses(name string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	known := false
	for _, d := range f.Devs {
		if d.Name == name {
			known = true
		}
	}
	for _, l := range f.Links {
		if l == name {
			known = true
		}
	}
	if !known {
		return nil, fmt.Errorf("link %s not found", name)
	}
	return append([]string(nil), f.Addrs[name]...), nil
}
