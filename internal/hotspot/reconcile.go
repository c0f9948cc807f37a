// Package hotspot reconciles the field kit's WiFi adapters toward the
// desired role split: one adapter as STA uplink, one running the "Hotspot"
// access point, with NAT between them. Roles are recomputed from live
// system state on every run; nothing is cached between invocations.
package hotspot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperr "github.com/fieldkit/hotspotd/internal/errors"
	"github.com/fieldkit/hotspotd/internal/fw"
	"github.com/fieldkit/hotspotd/internal/journal"
	"github.com/fieldkit/hotspotd/internal/logging"
	"github.com/fieldkit/hotspotd/internal/netdev"
	"github.com/fieldkit/hotspotd/internal/nm"
	"github.com/fieldkit/hotspotd/internal/svc"
)

// HotspotProfile is the one NetworkManager profile this tool owns. The
// janitor never deletes it; everything else bound to the AP adapter is
// fair game.
const HotspotProfile = "Hotspot"

// FallbackSubnet is NetworkManager's stock shared-mode network, assumed
// when the settle poll never observes an address on the AP interface.
const FallbackSubnet = "10.42.0.0/24"

// EnsureResult reports the outcome of an idempotent ensure operation.
type EnsureResult string

const (
	ResultSatisfied EnsureResult = "already_satisfied"
	ResultApplied   EnsureResult = "newly_applied"
)

// RunRecorder persists reconcile run history. Satisfied by *journal.DB.
type RunRecorder interface {
	InsertRun(ctx context.Context, run *journal.Run) error
}

// StartParams carries the per-run hotspot parameters.
type StartParams struct {
	SSID     string
	Password string
	// Channel is set on the profile when > 0; 0 leaves the choice to
	// the driver.
	Channel int
	// APInterface pins the hotspot to a specific adapter instead of
	// auto-detection.
	APInterface string
	// Persist writes the boot-time restore artifacts after the rules
	// are in place.
	Persist bool
}

// RunReport summarizes one reconcile pass for the CLI and the journal.
type RunReport struct {
	Action   string
	Outcome  string
	SSID     string
	APIface  string
	STAIface string
	Subnet   string
	Duration time.Duration
}

// Reconciler drives the full start/stop reconciliation over the injected
// collaborators.
type Reconciler struct {
	devs    netdev.Enumerator
	nm      nm.Client
	fw      *fw.Manager
	persist *fw.Persister
	sys     svc.Controller
	rec     RunRecorder
	logger  *slog.Logger

	lockPath       string
	lockAttempts   int
	lockRetryDelay time.Duration
	procIPForward  string
	settleInterval time.Duration
	settleAttempts int
	mdnsUnit       string
}

const (
	defaultLockAttempts   = 5
	defaultLockRetryDelay = 200 * time.Millisecond
	defaultSettleInterval = 2 * time.Second
	defaultSettleAttempts = 5
)

// New creates a Reconciler. The persister and recorder may be nil: a nil
// persister disables artifact handling, a nil recorder disables the journal.
func New(devs netdev.Enumerator, nmc nm.Client, fwm *fw.Manager, persist *fw.Persister, sys svc.Controller, rec RunRecorder, logger *slog.Logger) (*Reconciler, error) {
	if devs == nil {
		return nil, fmt.Errorf("new reconciler: device enumerator is required")
	}
	if nmc == nil {
		return nil, fmt.Errorf("new reconciler: nm client is required")
	}
	if fwm == nil {
		return nil, fmt.Errorf("new reconciler: firewall manager is required")
	}
	if sys == nil {
		return nil, fmt.Errorf("new reconciler: service controller is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("new reconciler: logger is required")
	}
	return &Reconciler{
		devs:    devs,
		nm:      nmc,
		fw:      fwm,
		persist: persist,
		sys:     sys,
		rec:     rec,
		logger:  logger.With("component", "hotspot"),

		lockPath:       DefaultLockPath,
		lockAttempts:   defaultLockAttempts,
		lockRetryDelay: defaultLockRetryDelay,
		procIPForward:  fw.ProcIPForward,
		settleInterval: defaultSettleInterval,
		settleAttempts: defaultSettleAttempts,
		mdnsUnit:       svc.DefaultMDNSUnit,
	}, nil
}

// Start runs the full reconciliation: classify adapters, clean the AP
// adapter, ensure the hotspot profile, wire NAT/forwarding, and kick the
// mDNS responder so kit services resolve for hotspot clients.
func (r *Reconciler) Start(ctx context.Context, p StartParams) (*RunReport, error) {
	ctx = logging.WithRunID(ctx, logging.GenerateRunID("start"))
	l := r.ctxLogger(ctx)
	began := time.Now()
	report := &RunReport{Action: "start", SSID: p.SSID}

	lock, err := acquireLock(r.lockPath, r.lockAttempts, r.lockRetryDelay)
	if err != nil {
		return r.finish(ctx, l, report, began, err)
	}
	defer lock.release()

	l.Info("reconcile_start",
		"ssid", p.SSID,
		"channel", p.Channel,
		"ap_override", p.APInterface,
		"persist", p.Persist,
		"operation", "start",
	)

	cls, err := r.Classify(ctx, p.APInterface)
	if err != nil {
		return r.finish(ctx, l, report, began, err)
	}
	report.APIface = cls.APInterface
	report.STAIface = cls.STA

	if err := r.CleanupInterface(ctx, cls.APInterface); err != nil {
		return r.finish(ctx, l, report, began, err)
	}

	subnet, hsRes, err := r.EnsureHotspot(ctx, cls.APInterface, p)
	if err != nil {
		return r.finish(ctx, l, report, began, err)
	}
	report.Subnet = subnet

	fwChanged, err := r.EnsureForwarding(ctx, cls.APInterface, cls.STA, subnet, p.Persist)
	if err != nil {
		return r.finish(ctx, l, report, began, err)
	}

	// The responder caches its interface list; a restart makes the kit's
	// .local name answer on the fresh AP subnet. Not worth failing the
	// run over.
	if err := r.sys.Restart(ctx, r.mdnsUnit); err != nil {
		l.Warn("mdns_restart_failed",
			"error", err,
			"unit", r.mdnsUnit,
			"operation", "start",
		)
	}

	report.Outcome = journal.OutcomeSatisfied
	if hsRes == ResultApplied || fwChanged {
		report.Outcome = journal.OutcomeApplied
	}
	return r.finish(ctx, l, report, began, nil)
}

// Stop tears the hotspot back down: profile, firewall rules, and persisted
// artifacts. Idempotent; a clean system reports already_satisfied.
func (r *Reconciler) Stop(ctx context.Context) (*RunReport, error) {
	ctx = logging.WithRunID(ctx, logging.GenerateRunID("stop"))
	l := r.ctxLogger(ctx)
	began := time.Now()
	report := &RunReport{Action: "stop"}

	lock, err := acquireLock(r.lockPath, r.lockAttempts, r.lockRetryDelay)
	if err != nil {
		return r.finish(ctx, l, report, began, err)
	}
	defer lock.release()

	l.Info("teardown_start", "operation", "stop")
	changed := false

	if err := r.nm.Down(ctx, HotspotProfile); err != nil {
		if !nm.IsNotFound(err) {
			l.Error("hotspot_down_failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err),
				"operation", "stop",
			)
			return r.finish(ctx, l, report, began,
				apperr.Fail(apperr.ErrCleanupFailed, fmt.Errorf("deactivate hotspot profile: %w", err)))
		}
	} else {
		changed = true
	}

	if err := r.nm.Delete(ctx, HotspotProfile); err != nil {
		if !nm.IsNotFound(err) {
			l.Error("hotspot_delete_failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err),
				"operation", "stop",
			)
			return r.finish(ctx, l, report, began,
				apperr.Fail(apperr.ErrCleanupFailed, fmt.Errorf("delete hotspot profile: %w", err)))
		}
	} else {
		changed = true
		l.Info("hotspot_profile_removed", "operation", "stop")
	}

	fwReport, err := r.fw.Clear()
	if err != nil {
		return r.finish(ctx, l, report, began,
			apperr.Fail(apperr.ErrForwardingFailed, fmt.Errorf("clear firewall rules: %w", err)))
	}
	if fwReport.Changed() {
		changed = true
	}

	// Forwarding stays on and the sysctl drop-in stays in place; only the
	// rule restore artifacts go.
	if r.persist != nil {
		if err := r.persist.Remove(); err != nil {
			return r.finish(ctx, l, report, began,
				apperr.Fail(apperr.ErrPersistFailed, fmt.Errorf("remove persisted artifacts: %w", err)))
		}
	}

	report.Outcome = journal.OutcomeSatisfied
	if changed {
		report.Outcome = journal.OutcomeApplied
	}
	return r.finish(ctx, l, report, began, nil)
}

// finish stamps the duration, journals the run, and emits the summary log.
// It is the single exit point for Start and Stop.
func (r *Reconciler) finish(ctx context.Context, l *slog.Logger, report *RunReport, began time.Time, err error) (*RunReport, error) {
	report.Duration = time.Since(began)

	switch {
	case err == nil:
	case apperr.IsAbsence(err):
		report.Outcome = journal.OutcomeSkipped
	default:
		report.Outcome = journal.OutcomeFailed
	}

	r.record(ctx, l, report, err)

	switch {
	case err == nil:
		l.Info("reconcile_complete",
			"action", report.Action,
			"outcome", report.Outcome,
			"ap_interface", report.APIface,
			"sta_interface", report.STAIface,
			"subnet", report.Subnet,
			"duration_ms", report.Duration.Milliseconds(),
		)
	case apperr.IsAbsence(err):
		l.Warn("reconcile_skipped",
			"action", report.Action,
			"code", apperr.Code(err),
			"error", err,
			"duration_ms", report.Duration.Milliseconds(),
		)
	default:
		l.Error("reconcile_failed",
			"action", report.Action,
			"code", apperr.Code(err),
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"duration_ms", report.Duration.Milliseconds(),
		)
	}
	return report, err
}

// record writes the run to the journal. History only; failures never fail
// the run itself.
func (r *Reconciler) record(ctx context.Context, l *slog.Logger, report *RunReport, err error) {
	if r.rec == nil {
		return
	}
	run := &journal.Run{
		RunID:    logging.RunID(ctx),
		Action:   report.Action,
		Outcome:  report.Outcome,
		SSID:     report.SSID,
		APIface:  report.APIface,
		STAIface: report.STAIface,
		Subnet:   report.Subnet,
		Duration: report.Duration,
	}
	if err != nil {
		run.Error = err.Error()
	}
	if ierr := r.rec.InsertRun(ctx, run); ierr != nil {
		l.Warn("journal_insert_failed",
			"error", ierr,
			"action", report.Action,
		)
	}
}

// ctxLogger returns a logger enriched with context attributes (run_id).
func (r *Reconciler) ctxLogger(ctx context.Context) *slog.Logger {
	attrs := logging.LogAttrsFromContext(ctx)
	if len(attrs) == 0 {
		return r.logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return r.logger.With(args...)
}
