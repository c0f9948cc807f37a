package hotspot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperr "github.com/fieldkit/hotspotd/internal/errors"
	"github.com/fieldkit/hotspotd/internal/fw"
	"github.com/fieldkit/hotspotd/internal/journal"
	"github.com/fieldkit/hotspotd/internal/netdev"
	"github.com/fieldkit/hotspotd/internal/nm"
	"github.com/fieldkit/hotspotd/internal/testutil"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fixture wires a Reconciler to in-memory fakes with fast timing.
type fixture struct {
	rec      *Reconciler
	devs     *testutil.FakeEnumerator
	nm       *testutil.FakeNM
	applier  *testutil.FakeApplier
	sys      *testutil.FakeController
	recorder *testutil.FakeRecorder
	persist  *fw.Persister
	proc     string
}

// newFixture builds the default two-adapter kit: wlan0 is the built-in PCI
// radio, wlan1 the USB adapter. Nothing is connected yet; wlan1 already has
// its shared-mode address staged so settle polls resolve immediately.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	devs := &testutil.FakeEnumerator{
		Devs: []netdev.Device{testutil.PCIWiFi("wlan0"), testutil.USBWiFi("wlan1")},
	}
	devs.SetAddrs("wlan1", "10.42.0.1/24")

	fakeNM := testutil.NewFakeNM(testutil.WiFiDevice("wlan0"), testutil.WiFiDevice("wlan1"))

	applier := &testutil.FakeApplier{}
	fwm, err := fw.NewManager(applier, testLogger, false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	dir := t.TempDir()
	proc := filepath.Join(dir, "ip_forward")
	if err := os.WriteFile(proc, []byte("0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	persist, err := fw.NewPersister(testLogger)
	if err != nil {
		t.Fatalf("NewPersister: %v", err)
	}
	persist.RulesetPath = filepath.Join(dir, "hotspot.nft")
	persist.DispatcherPath = filepath.Join(dir, "90-hotspot-nat")
	persist.SysctlPath = filepath.Join(dir, "90-hotspot.conf")

	sys := &testutil.FakeController{}
	recorder := &testutil.FakeRecorder{}

	r, err := New(devs, fakeNM, fwm, persist, sys, recorder, testLogger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.lockPath = filepath.Join(dir, "hotspotd.lock")
	r.lockAttempts = 1
	r.lockRetryDelay = time.Millisecond
	r.procIPForward = proc
	r.settleInterval = time.Millisecond
	r.settleAttempts = 2

	return &fixture{
		rec:      r,
		devs:     devs,
		nm:       fakeNM,
		applier:  applier,
		sys:      sys,
		recorder: recorder,
		persist:  persist,
		proc:     proc,
	}
}

// connectSTA seeds an active uplink profile on iface.
func (fx *fixture) connectSTA(iface, profile string) {
	fx.nm.AddProfile(testutil.FakeProfile{
		Name:   profile,
		Type:   nm.TypeWiFiConnection,
		Iface:  iface,
		Active: true,
	})
}

func (fx *fixture) procContent(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(fx.proc)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func defaultParams() StartParams {
	return StartParams{SSID: "JetsonFieldKit", Password: "fieldkit123", Channel: 1}
}

func TestNew_RequiresDependencies(t *testing.T) {
	fx := newFixture(t)
	fwm, _ := fw.NewTestManager(testLogger, false)

	cases := []struct {
		name string
		err  error
	}{
		{"devices", func() error { _, err := New(nil, fx.nm, fwm, nil, fx.sys, nil, testLogger); return err }()},
		{"nm", func() error { _, err := New(fx.devs, nil, fwm, nil, fx.sys, nil, testLogger); return err }()},
		{"fw", func() error { _, err := New(fx.devs, fx.nm, nil, nil, fx.sys, nil, testLogger); return err }()},
		{"svc", func() error { _, err := New(fx.devs, fx.nm, fwm, nil, nil, nil, testLogger); return err }()},
		{"logger", func() error { _, err := New(fx.devs, fx.nm, fwm, nil, fx.sys, nil, nil); return err }()},
	}
	for _, tc := range cases {
		if tc.err == nil {
			t.Errorf("New with nil %s: expected error", tc.name)
		}
	}

	// Persister and recorder are optional.
	if _, err := New(fx.devs, fx.nm, fwm, nil, fx.sys, nil, testLogger); err != nil {
		t.Errorf("New with nil persister/recorder: %v", err)
	}
}

func TestStart_FullKit(t *testing.T) {
	fx := newFixture(t)
	fx.connectSTA("wlan0", "HomeNet")

	report, err := fx.rec.Start(context.Background(), defaultParams())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if report.Outcome != journal.OutcomeApplied {
		t.Errorf("outcome = %q, want applied", report.Outcome)
	}
	if report.APIface != "wlan1" || report.STAIface != "wlan0" {
		t.Errorf("roles = ap %q sta %q, want wlan1/wlan0", report.APIface, report.STAIface)
	}
	if report.Subnet != "10.42.0.0/24" {
		t.Errorf("subnet = %q, want 10.42.0.0/24", report.Subnet)
	}

	prof, ok := fx.nm.Profile(HotspotProfile)
	if !ok || !prof.Active || prof.Iface != "wlan1" {
		t.Fatalf("hotspot profile = %+v (ok=%v), want active on wlan1", prof, ok)
	}
	if prof.SSID != "JetsonFieldKit" || prof.Password != "fieldkit123" || prof.Channel != 1 {
		t.Errorf("profile params = %+v", prof)
	}

	if rules := fx.applier.Installed(); len(rules) != 3 {
		t.Errorf("installed rules = %d, want 3", len(rules))
	}
	if got := fx.procContent(t); got != "1\n" {
		t.Errorf("ip_forward = %q, want 1", got)
	}
	if n := fx.sys.RestartCount("avahi-daemon"); n != 1 {
		t.Errorf("mdns restarts = %d, want 1", n)
	}

	run, ok := fx.recorder.Last()
	if !ok {
		t.Fatal("expected a journal record")
	}
	if run.Action != "start" || run.Outcome != journal.OutcomeApplied || run.Error != "" {
		t.Errorf("journal run = %+v", run)
	}
	if !strings.HasPrefix(run.RunID, "run_start_") {
		t.Errorf("run id = %q", run.RunID)
	}
}

func TestStart_TwiceIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	fx.connectSTA("wlan0", "HomeNet")
	ctx := context.Background()

	if _, err := fx.rec.Start(ctx, defaultParams()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	report, err := fx.rec.Start(ctx, defaultParams())
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if report.Outcome != journal.OutcomeSatisfied {
		t.Errorf("second outcome = %q, want satisfied", report.Outcome)
	}
	if n := fx.applier.Applies(); n != 1 {
		t.Errorf("firewall applies = %d, want 1", n)
	}

	adds := 0
	for _, call := range fx.nm.CallLog() {
		if call == "add "+HotspotProfile {
			adds++
		}
	}
	if adds != 1 {
		t.Errorf("profile adds = %d, want 1", adds)
	}
	if rules := fx.applier.Installed(); len(rules) != 3 {
		t.Errorf("installed rules = %d, want 3 with no duplicates", len(rules))
	}
}

func TestStart_LocalOnlySkipsFirewall(t *testing.T) {
	fx := newFixture(t)

	report, err := fx.rec.Start(context.Background(), defaultParams())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if report.STAIface != "" {
		t.Errorf("sta = %q, want empty in local-only mode", report.STAIface)
	}
	if n := fx.applier.Applies(); n != 0 {
		t.Errorf("firewall applies = %d, want 0", n)
	}
	if got := fx.procContent(t); got != "0\n" {
		t.Errorf("ip_forward = %q, want untouched", got)
	}
	if prof, ok := fx.nm.Profile(HotspotProfile); !ok || !prof.Active {
		t.Error("hotspot should still come up without an uplink")
	}
}

func TestStart_OverrideAbsentSoftSkips(t *testing.T) {
	fx := newFixture(t)
	p := defaultParams()
	p.APInterface = "wlan9"

	report, err := fx.rec.Start(context.Background(), p)
	if !apperr.IsAbsence(err) {
		t.Fatalf("err = %v, want absence condition", err)
	}
	if report.Outcome != journal.OutcomeSkipped {
		t.Errorf("outcome = %q, want skipped", report.Outcome)
	}
	if calls := fx.nm.CallLog(); len(calls) != 0 {
		t.Errorf("unexpected nm mutations: %v", calls)
	}
	if n := fx.applier.Applies(); n != 0 {
		t.Errorf("firewall applies = %d, want 0", n)
	}
	run, _ := fx.recorder.Last()
	if run.Outcome != journal.OutcomeSkipped {
		t.Errorf("journal outcome = %q, want skipped", run.Outcome)
	}
}

func TestStart_OverrideEqualsSTAFails(t *testing.T) {
	fx := newFixture(t)
	fx.connectSTA("wlan0", "HomeNet")
	p := defaultParams()
	p.APInterface = "wlan0"

	_, err := fx.rec.Start(context.Background(), p)
	if !apperr.IsPrecondition(err) {
		t.Fatalf("err = %v, want precondition", err)
	}
	if code := apperr.Code(err); code != apperr.ErrInterfaceConflict {
		t.Errorf("code = %q, want %q", code, apperr.ErrInterfaceConflict)
	}
	if calls := fx.nm.CallLog(); len(calls) != 0 {
		t.Errorf("unexpected nm mutations: %v", calls)
	}
	if got := fx.procContent(t); got != "0\n" {
		t.Errorf("ip_forward = %q, want untouched", got)
	}
}

func TestStart_NoCandidateFails(t *testing.T) {
	fx := newFixture(t)
	fx.devs.Devs = []netdev.Device{testutil.PCIWiFi("wlan0")}
	fx.connectSTA("wlan0", "HomeNet")

	_, err := fx.rec.Start(context.Background(), defaultParams())
	if !apperr.IsPrecondition(err) {
		t.Fatalf("err = %v, want precondition", err)
	}
	if code := apperr.Code(err); code != apperr.ErrNoAPCandidate {
		t.Errorf("code = %q, want %q", code, apperr.ErrNoAPCandidate)
	}
	run, _ := fx.recorder.Last()
	if run.Outcome != journal.OutcomeFailed {
		t.Errorf("journal outcome = %q, want failed", run.Outcome)
	}
}

func TestStart_LockBusy(t *testing.T) {
	fx := newFixture(t)
	held, err := acquireLock(fx.rec.lockPath, 1, time.Millisecond)
	if err != nil {
		t.Fatalf("acquireLock: %v", err)
	}
	defer held.release()

	_, err = fx.rec.Start(context.Background(), defaultParams())
	if !apperr.IsPrecondition(err) {
		t.Fatalf("err = %v, want precondition", err)
	}
	if code := apperr.Code(err); code != apperr.ErrLockBusy {
		t.Errorf("code = %q, want %q", code, apperr.ErrLockBusy)
	}
}

func TestStart_CreateFailureJournaled(t *testing.T) {
	fx := newFixture(t)
	fx.connectSTA("wlan0", "HomeNet")
	fx.nm.FailAdd = errors.New("802.11 ap mode not supported")

	_, err := fx.rec.Start(context.Background(), defaultParams())
	if err == nil {
		t.Fatal("expected error")
	}
	if code := apperr.Code(err); code != apperr.ErrProfileCreateFailed {
		t.Errorf("code = %q, want %q", code, apperr.ErrProfileCreateFailed)
	}

	run, ok := fx.recorder.Last()
	if !ok {
		t.Fatal("expected a journal record")
	}
	if run.Outcome != journal.OutcomeFailed || !strings.Contains(run.Error, "create hotspot profile") {
		t.Errorf("journal run = %+v", run)
	}
}

func TestStart_MDNSRestartFailureIsSoft(t *testing.T) {
	fx := newFixture(t)
	fx.connectSTA("wlan0", "HomeNet")
	fx.sys.FailRestart = errors.New("unit avahi-daemon not found")

	report, err := fx.rec.Start(context.Background(), defaultParams())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if report.Outcome != journal.OutcomeApplied {
		t.Errorf("outcome = %q, want applied", report.Outcome)
	}
}

func TestStart_PersistWritesArtifacts(t *testing.T) {
	fx := newFixture(t)
	fx.connectSTA("wlan0", "HomeNet")
	p := defaultParams()
	p.Persist = true

	if _, err := fx.rec.Start(context.Background(), p); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for _, path := range []string{fx.persist.RulesetPath, fx.persist.DispatcherPath, fx.persist.SysctlPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("artifact %s: %v", path, err)
		}
	}
}

func TestStop_TearsDownEverything(t *testing.T) {
	fx := newFixture(t)
	fx.connectSTA("wlan0", "HomeNet")
	ctx := context.Background()
	p := defaultParams()
	p.Persist = true

	if _, err := fx.rec.Start(ctx, p); err != nil {
		t.Fatalf("Start: %v", err)
	}

	report, err := fx.rec.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if report.Outcome != journal.OutcomeApplied {
		t.Errorf("outcome = %q, want applied", report.Outcome)
	}

	if _, ok := fx.nm.Profile(HotspotProfile); ok {
		t.Error("hotspot profile should be gone")
	}
	if rules := fx.applier.Installed(); len(rules) != 0 {
		t.Errorf("installed rules = %d, want 0", len(rules))
	}
	for _, path := range []string{fx.persist.RulesetPath, fx.persist.DispatcherPath} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("artifact %s should be removed", path)
		}
	}
	// Forwarding is never reverted; the sysctl drop-in stays.
	if _, err := os.Stat(fx.persist.SysctlPath); err != nil {
		t.Errorf("sysctl drop-in should remain: %v", err)
	}
	if got := fx.procContent(t); got != "1\n" {
		t.Errorf("ip_forward = %q, want still 1", got)
	}

	run, _ := fx.recorder.Last()
	if run.Action != "stop" || run.Outcome != journal.OutcomeApplied {
		t.Errorf("journal run = %+v", run)
	}
}

func TestStop_CleanSystemIsSatisfied(t *testing.T) {
	fx := newFixture(t)

	report, err := fx.rec.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if report.Outcome != journal.OutcomeSatisfied {
		t.Errorf("outcome = %q, want satisfied", report.Outcome)
	}
}

func TestStop_ThenStartAgain(t *testing.T) {
	fx := newFixture(t)
	fx.connectSTA("wlan0", "HomeNet")
	ctx := context.Background()

	if _, err := fx.rec.Start(ctx, defaultParams()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := fx.rec.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	report, err := fx.rec.Start(ctx, defaultParams())
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if report.Outcome != journal.OutcomeApplied {
		t.Errorf("outcome = %q, want applied after teardown", report.Outcome)
	}
	if prof, ok := fx.nm.Profile(HotspotProfile); !ok || !prof.Active {
		t.Error("hotspot should be active again")
	}
}
