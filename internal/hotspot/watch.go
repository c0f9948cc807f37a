package hotspot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperr "github.com/fieldkit/hotspotd/internal/errors"
	"github.com/fieldkit/hotspotd/internal/sdnotify"
)

// Watcher re-runs the start reconciliation on a fixed interval so the kit
// converges as adapters are plugged and unplugged in the field. Each cycle
// takes the same advisory lock as a manual run.
type Watcher struct {
	rec      *Reconciler
	params   StartParams
	interval time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a Watcher that reconciles every interval.
func NewWatcher(rec *Reconciler, params StartParams, interval time.Duration, logger *slog.Logger) (*Watcher, error) {
	if rec == nil {
		return nil, fmt.Errorf("new watcher: reconciler is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("new watcher: interval must be positive")
	}
	if logger == nil {
		return nil, fmt.Errorf("new watcher: logger is required")
	}
	return &Watcher{
		rec:      rec,
		params:   params,
		interval: interval,
		logger:   logger.With("component", "watch"),
	}, nil
}

// Run starts the reconcile loop. It blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("watch_started",
		"interval", w.interval.String(),
		"ssid", w.params.SSID,
	)
	_ = sdnotify.Ready()

	w.cycle(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch_stopped")
			_ = sdnotify.Stopping()
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

// cycle executes one reconcile pass. Soft skips and failures are logged
// and the loop keeps going; the watchdog is only fed on cycles that did
// not fail hard, so a persistently broken kit gets restarted by systemd.
func (w *Watcher) cycle(ctx context.Context) {
	report, err := w.rec.Start(ctx, w.params)
	switch {
	case err == nil:
		_ = sdnotify.Status(fmt.Sprintf("hotspot %s on %s (%s)",
			report.SSID, report.APIface, report.Outcome))
	case apperr.IsAbsence(err):
		w.logger.Warn("watch_cycle_skipped",
			"code", apperr.Code(err),
			"error", err,
			"operation", "watch",
		)
		_ = sdnotify.Status("waiting for AP adapter")
	default:
		w.logger.Error("watch_cycle_failed",
			"code", apperr.Code(err),
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"operation", "watch",
		)
		return
	}
	_ = sdnotify.Watchdog()
}
