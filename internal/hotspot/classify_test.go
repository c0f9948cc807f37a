package hotspot

import (
	"context"
	"errors"
	"testing"

	apperr "github.com/fieldkit/hotspotd/internal/errors"
	"github.com/fieldkit/hotspotd/internal/netdev"
	"github.com/fieldkit/hotspotd/internal/nm"
	"github.com/fieldkit/hotspotd/internal/testutil"
)

func TestClassify_PrefersUSBForAP(t *testing.T) {
	fx := newFixture(t)
	fx.connectSTA("wlan0", "HomeNet")

	cls, err := fx.rec.Classify(context.Background(), "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.STA != "wlan0" || cls.STAProfile != "HomeNet" {
		t.Errorf("sta = %q (%q), want wlan0 (HomeNet)", cls.STA, cls.STAProfile)
	}
	if cls.APInterface != "wlan1" {
		t.Errorf("ap = %q, want wlan1", cls.APInterface)
	}
}

func TestClassify_USBBeatsEnumerationOrder(t *testing.T) {
	fx := newFixture(t)
	// Three radios: built-in uplink, a second PCI card, and a USB dongle
	// listed last. The dongle must still win.
	fx.devs.Devs = []netdev.Device{
		testutil.PCIWiFi("wlan0"),
		testutil.PCIWiFi("wlan1"),
		testutil.USBWiFi("wlan2"),
	}
	fx.nm.AddDevice(testutil.WiFiDevice("wlan2"))
	fx.connectSTA("wlan0", "HomeNet")

	cls, err := fx.rec.Classify(context.Background(), "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.APInterface != "wlan2" {
		t.Errorf("ap = %q, want the USB adapter wlan2", cls.APInterface)
	}
	want := []string{"wlan2", "wlan1"}
	if len(cls.APCandidates) != len(want) {
		t.Fatalf("candidates = %v, want %v", cls.APCandidates, want)
	}
	for i := range want {
		if cls.APCandidates[i] != want[i] {
			t.Errorf("candidates[%d] = %q, want %q", i, cls.APCandidates[i], want[i])
		}
	}
}

func TestClassify_NoCandidateIsFatal(t *testing.T) {
	fx := newFixture(t)
	fx.devs.Devs = []netdev.Device{testutil.PCIWiFi("wlan0")}
	fx.connectSTA("wlan0", "HomeNet")

	_, err := fx.rec.Classify(context.Background(), "")
	if !apperr.IsPrecondition(err) {
		t.Fatalf("err = %v, want precondition", err)
	}
	if code := apperr.Code(err); code != apperr.ErrNoAPCandidate {
		t.Errorf("code = %q, want %q", code, apperr.ErrNoAPCandidate)
	}
}

func TestClassify_LocalOnly(t *testing.T) {
	fx := newFixture(t)

	cls, err := fx.rec.Classify(context.Background(), "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.STA != "" {
		t.Errorf("sta = %q, want empty with no uplink", cls.STA)
	}
	// Both radios are free; the USB one still leads.
	if cls.APInterface != "wlan1" {
		t.Errorf("ap = %q, want wlan1", cls.APInterface)
	}
	if len(cls.APCandidates) != 2 {
		t.Errorf("candidates = %v, want both radios", cls.APCandidates)
	}
}

func TestClassify_HotspotNotMistakenForUplink(t *testing.T) {
	fx := newFixture(t)
	fx.nm.AddProfile(testutil.FakeProfile{
		Name:   HotspotProfile,
		Type:   nm.TypeWiFiConnection,
		Iface:  "wlan1",
		Active: true,
	})

	cls, err := fx.rec.Classify(context.Background(), "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.STA != "" {
		t.Errorf("sta = %q; the hotspot's own connection is not an uplink", cls.STA)
	}
	if cls.APInterface != "wlan1" {
		t.Errorf("ap = %q, want wlan1", cls.APInterface)
	}
}

func TestClassify_OverrideAbsent(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.rec.Classify(context.Background(), "wlan9")
	if !apperr.IsAbsence(err) {
		t.Fatalf("err = %v, want absence condition", err)
	}
	if code := apperr.Code(err); code != apperr.ErrAdapterAbsent {
		t.Errorf("code = %q, want %q", code, apperr.ErrAdapterAbsent)
	}
}

func TestClassify_OverrideConflictsWithUplink(t *testing.T) {
	fx := newFixture(t)
	fx.connectSTA("wlan0", "HomeNet")

	_, err := fx.rec.Classify(context.Background(), "wlan0")
	if !apperr.IsPrecondition(err) {
		t.Fatalf("err = %v, want precondition", err)
	}
	if code := apperr.Code(err); code != apperr.ErrInterfaceConflict {
		t.Errorf("code = %q, want %q", code, apperr.ErrInterfaceConflict)
	}
}

func TestClassify_OverrideWins(t *testing.T) {
	fx := newFixture(t)
	fx.connectSTA("wlan1", "HomeNet")

	// USB adapter is the uplink here; the override forces the hotspot onto
	// the built-in radio instead of auto-picking.
	cls, err := fx.rec.Classify(context.Background(), "wlan0")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.APInterface != "wlan0" {
		t.Errorf("ap = %q, want the override wlan0", cls.APInterface)
	}
	if cls.STA != "wlan1" {
		t.Errorf("sta = %q, want wlan1", cls.STA)
	}
}

func TestClassify_EnumerationError(t *testing.T) {
	fx := newFixture(t)
	fx.devs.WirelessErr = errors.New("netlink: permission denied")

	_, err := fx.rec.Classify(context.Background(), "")
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.IsPrecondition(err) || apperr.IsAbsence(err) {
		t.Errorf("enumeration failures are plain errors, got %v", err)
	}
}
