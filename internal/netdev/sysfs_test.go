package netdev

import (
	"os"
	"path/filepath"
	"testing"
)

// fakeSysfs builds a /sys/class/net lookalike rooted in a temp dir.
// Each interface gets an entry dir; wireless ones get a wireless subdir;
// devicePath, when set, becomes the target of the device symlink.
func fakeSysfs(t *testing.T, ifaces map[string]struct {
	wireless   bool
	devicePath string
}) string {
	t.Helper()
	root := t.TempDir()

	for name, spec := range ifaces {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if spec.wireless {
			if err := os.MkdirAll(filepath.Join(dir, "wireless"), 0o755); err != nil {
				t.Fatal(err)
			}
		}
		if spec.devicePath != "" {
			target := filepath.Join(root, spec.devicePath)
			if err := os.MkdirAll(target, 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.Symlink(target, filepath.Join(dir, "device")); err != nil {
				t.Fatal(err)
			}
		}
	}
	return root
}

func TestWirelessNames_FiltersAndSorts(t *testing.T) {
	root := fakeSysfs(t, map[string]struct {
		wireless   bool
		devicePath string
	}{
		"wlan1": {wireless: true},
		"eth0":  {wireless: false},
		"wlan0": {wireless: true},
		"lo":    {wireless: false},
	})

	names, err := wirelessNames(root)
	if err != nil {
		t.Fatalf("wirelessNames: %v", err)
	}
	if len(names) != 2 || names[0] != "wlan0" || names[1] != "wlan1" {
		t.Fatalf("names = %v, want [wlan0 wlan1]", names)
	}
}

func TestBusOf_USB(t *testing.T) {
	// USB WiFi dongles sit under a PCI host controller; the usb segment
	// must win the classification.
	root := fakeSysfs(t, map[string]struct {
		wireless   bool
		devicePath string
	}{
		"wlan1": {
			wireless:   true,
			devicePath: "devices/pci0000:00/0000:00:14.0/usb1/1-3/1-3:1.0",
		},
	})

	if bus := busOf(root, "wlan1"); bus != BusUSB {
		t.Fatalf("bus = %q, want usb", bus)
	}
}

func TestBusOf_PCI(t *testing.T) {
	root := fakeSysfs(t, map[string]struct {
		wireless   bool
		devicePath string
	}{
		"wlan0": {
			wireless:   true,
			devicePath: "devices/pci0000:00/0000:00:14.3",
		},
	})

	if bus := busOf(root, "wlan0"); bus != BusPCI {
		t.Fatalf("bus = %q, want pci", bus)
	}
}

func TestBusOf_MissingDeviceLink(t *testing.T) {
	root := fakeSysfs(t, map[string]struct {
		wireless   bool
		devicePath string
	}{
		"wlan0": {wireless: true},
	})

	if bus := busOf(root, "wlan0"); bus != BusUnknown {
		t.Fatalf("bus = %q, want unknown", bus)
	}
}
