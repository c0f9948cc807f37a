package netdev

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// wirelessNames returns the names of WiFi-capable interfaces under root
// (normally /sys/class/net), sorted for deterministic classification.
func wirelessNames(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		// Entries are symlinks into /sys/devices; Stat follows them.
		if _, err := os.Stat(filepath.Join(root, e.Name(), "wireless")); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// busOf classifies the hardware attachment of an interface by resolving
// its device symlink into the /sys/devices tree. USB adapters hang off a
// PCI host controller, so the usb check comes first.
func busOf(root, name string) Bus {
	real, err := filepath.EvalSymlinks(filepath.Join(root, name, "device"))
	if err != nil {
		return BusUnknown
	}
	switch {
	case strings.Contains(real, "/usb"):
		return BusUSB
	case strings.Contains(real, "/pci"):
		return BusPCI
	default:
		return BusUnknown
	}
}
