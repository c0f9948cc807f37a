package netdev

// Bus identifies the hardware attachment of a network device.
type Bus string

const (
	BusUSB     Bus = "usb"
	BusPCI     Bus = "pci"
	BusUnknown Bus = "unknown"
)

// Device describes a network interface as discovered from the system.
type Device struct {
	Name     string
	Wireless bool
	Bus      Bus
}

// Enumerator abstracts network device discovery for testability.
// The real implementation reads /sys/class/net and vishvananda/netlink.
type Enumerator interface {
	// Wireless returns all WiFi-capable interfaces, sorted by name.
	Wireless() ([]Device, error)

	// Exists checks if a network interface with the given name exists.
	Exists(name string) (bool, error)

	// Addresses returns CIDR addresses assigned to a network interface.
	Addresses(name string) ([]string, error)
}
