package nm

import (
	"reflect"
	"testing"
)

func TestSplitTerse_Plain(t *testing.T) {
	got := splitTerse("wlan0:wifi:connected:HomeWifi")
	want := []string{"wlan0", "wifi", "connected", "HomeWifi"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitTerse = %v, want %v", got, want)
	}
}

func TestSplitTerse_EscapedColon(t *testing.T) {
	// A profile named "Cafe: Guest" comes out of nmcli -t with the colon
	// escaped.
	got := splitTerse(`Cafe\: Guest:802-11-wireless:`)
	want := []string{"Cafe: Guest", "802-11-wireless", ""}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitTerse = %v, want %v", got, want)
	}
}

func TestSplitTerse_EscapedBackslash(t *testing.T) {
	got := splitTerse(`Net\\One:802-11-wireless:wlan0`)
	want := []string{`Net\One`, "802-11-wireless", "wlan0"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitTerse = %v, want %v", got, want)
	}
}

func TestParseDeviceRows(t *testing.T) {
	out := "wlan0:wifi:connected:HomeWifi\n" +
		"wlan1:wifi:disconnected:\n" +
		"eth0:ethernet:unavailable:\n" +
		"lo:loopback:unmanaged:\n"

	rows, err := parseDeviceRows(out)
	if err != nil {
		t.Fatalf("parseDeviceRows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(rows))
	}
	if rows[0] != (DeviceStatus{Device: "wlan0", Type: "wifi", State: "connected", Connection: "HomeWifi"}) {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1] != (DeviceStatus{Device: "wlan1", Type: "wifi", State: "disconnected"}) {
		t.Errorf("row 1 = %+v", rows[1])
	}
}

func TestParseDeviceRows_Malformed(t *testing.T) {
	if _, err := parseDeviceRows("wlan0:wifi\n"); err == nil {
		t.Fatal("expected error for short row")
	}
}

func TestParseConnectionRows(t *testing.T) {
	out := "HomeWifi:802-11-wireless:wlan0\n" +
		"Hotspot:802-11-wireless:\n" +
		"Wired connection 1:802-3-ethernet:eth0\n"

	rows, err := parseConnectionRows(out)
	if err != nil {
		t.Fatalf("parseConnectionRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[1] != (Connection{Name: "Hotspot", Type: "802-11-wireless"}) {
		t.Errorf("row 1 = %+v", rows[1])
	}
	if rows[2].Name != "Wired connection 1" {
		t.Errorf("row 2 name = %q", rows[2].Name)
	}
}

func TestHotspotArgs_WithChannel(t *testing.T) {
	args := hotspotArgs(HotspotParams{
		Name:     "Hotspot",
		Iface:    "wlan1",
		SSID:     "JetsonFieldKit",
		Password: "fieldkit123",
		Channel:  6,
	})

	want := []string{
		"connection", "add",
		"type", "wifi",
		"ifname", "wlan1",
		"con-name", "Hotspot",
		"ssid", "JetsonFieldKit",
		"802-11-wireless.mode", "ap",
		"802-11-wireless.band", "bg",
		"802-11-wireless.channel", "6",
		"ipv4.method", "shared",
		"wifi-sec.key-mgmt", "wpa-psk",
		"wifi-sec.psk", "fieldkit123",
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("args = %v\nwant %v", args, want)
	}
}

func TestHotspotArgs_ZeroChannelOmitted(t *testing.T) {
	args := hotspotArgs(HotspotParams{
		Name:     "Hotspot",
		Iface:    "wlan1",
		SSID:     "JetsonFieldKit",
		Password: "fieldkit123",
	})

	for _, a := range args {
		if a == "802-11-wireless.channel" {
			t.Fatal("channel property present for channel 0")
		}
	}
}

func TestModifyArgs_SortedProps(t *testing.T) {
	args := modifyArgs("Hotspot", map[string]string{
		"connection.interface-name":       "wlan1",
		"connection.autoconnect":          "yes",
		"connection.autoconnect-priority": "100",
	})

	want := []string{
		"connection", "modify", "Hotspot",
		"connection.autoconnect", "yes",
		"connection.autoconnect-priority", "100",
		"connection.interface-name", "wlan1",
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("args = %v\nwant %v", args, want)
	}
}
