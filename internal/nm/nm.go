package nm

import "context"

// Values nmcli reports in terse output. Device listings use short type
// names while connection listings use the settings-spec name.
const (
	TypeWiFiDevice     = "wifi"
	TypeWiFiConnection = "802-11-wireless"
	StateConnected     = "connected"
	StateDisconnected  = "disconnected"
	StateUnavailable   = "unavailable"
	StateUnmanaged     = "unmanaged"
)

// DeviceStatus is one row of `nmcli device status`: the device, its type,
// its activation state, and the name of the active connection (empty when
// none).
type DeviceStatus struct {
	Device     string
	Type       string
	State      string
	Connection string
}

// Connection is one saved NetworkManager profile. Device is the interface
// the profile is currently active on, empty for inactive profiles.
type Connection struct {
	Name   string
	Type   string
	Device string
}

// HotspotParams holds everything needed to create an AP-mode profile.
type HotspotParams struct {
	Name     string
	Iface    string
	SSID     string
	Password string
	// Channel is set on the profile when > 0; 0 leaves the choice to
	// the driver.
	Channel int
}

// Client abstracts NetworkManager operations for testability.
// The real implementation shells out to nmcli.
type Client interface {
	// Devices returns per-device status as NetworkManager sees it.
	Devices(ctx context.Context) ([]DeviceStatus, error)

	// Connections returns all saved connection profiles.
	Connections(ctx context.Context) ([]Connection, error)

	// AddHotspot creates an AP-mode WiFi profile.
	AddHotspot(ctx context.Context, p HotspotParams) error

	// Modify applies property changes to a profile.
	Modify(ctx context.Context, name string, props map[string]string) error

	// Property reads a single setting value from a saved profile.
	Property(ctx context.Context, name, property string) (string, error)

	// Up activates a profile by name.
	Up(ctx context.Context, name string) error

	// Down deactivates a profile by name.
	Down(ctx context.Context, name string) error

	// Delete removes a profile by name.
	Delete(ctx context.Context, name string) error
}
