//go:build linux

package netdev

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vishvananda/netlink"
)

// sysfsEnumerator implements Enumerator using /sys/class/net for discovery
// and vishvananda/netlink for address readback.
type sysfsEnumerator struct {
	root string
}

// NewEnumerator creates an Enumerator backed by sysfs and netlink.
func NewEnumerator() Enumerator {
	return &sysfsEnumerator{root: "/sys/class/net"}
}

func (e *sysfsEnumerator) Wireless() ([]Device, error) {
	names, err := wirelessNames(e.root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", e.root, err)
	}

	devices := make([]Device, 0, len(names))
	for _, name := range names {
		devices = append(devices, Device{
			Name:     name,
			Wireless: true,
			Bus:      busOf(e.root, name),
		})
	}
	return devices, nil
}

func (e *sysfsEnumerator) Exists(name string) (bool, error) {
	_, err := netlink.LinkByName(name)
	if err == nil {
		return true, nil
	}

	var lnfe netlink.LinkNotFoundError
	if errors.As(err, &lnfe) {
		return false, nil
	}
	if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "no such device") {
		return false, nil
	}

	return false, fmt.Errorf("check link %s: %w", name, err)
}

func (e *sysfsEnumerator) Addresses(name string) ([]string, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("get link %s: %w", name, err)
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return nil, fmt.Errorf("list addresses for %s: %w", name, err)
	}
	result := make([]string, len(addrs))
	for i, a := range addrs {
		result[i] = a.IPNet.String()
	}
	return result, nil
}
