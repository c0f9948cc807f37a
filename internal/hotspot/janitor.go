package hotspot

import (
	"context"
	"fmt"
	"regexp"

	apperr "github.com/fieldkit/hotspotd/internal/errors"
	"github.com/fieldkit/hotspotd/internal/nm"
)

// duplicatePattern matches the "<name> <digits>" profiles NetworkManager
// generates when repeated connect attempts clone an existing profile
// instead of reusing it.
var duplicatePattern = regexp.MustCompile(`^.+ \d+$`)

// CleanupInterface clears NetworkManager state that would fight the hotspot:
// any foreign profile active on the AP adapter (auto-reconnect artifacts
// binding it to a previously known network), plus duplicate-suffixed WiFi
// profiles anywhere, which would otherwise silently grab the AP adapter on
// a later boot. A profile literally named "Hotspot" is never touched.
func (r *Reconciler) CleanupInterface(ctx context.Context, apIf string) error {
	l := r.ctxLogger(ctx)

	conns, err := r.nm.Connections(ctx)
	if err != nil {
		l.Error("list_connections_failed",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"operation", "cleanup",
		)
		return apperr.Fail(apperr.ErrCleanupFailed,
			fmt.Errorf("cleanup %s: list connections: %w", apIf, err))
	}

	for _, c := range conns {
		if c.Device != apIf || c.Name == HotspotProfile {
			continue
		}
		l.Info("cleanup_active_profile",
			"connection", c.Name,
			"interface", apIf,
			"operation", "cleanup",
		)
		if err := r.nm.Down(ctx, c.Name); err != nil && !nm.IsNotFound(err) {
			l.Error("connection_down_failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err),
				"connection", c.Name,
				"operation", "cleanup",
			)
			return apperr.Fail(apperr.ErrCleanupFailed,
				fmt.Errorf("cleanup %s: down %s: %w", apIf, c.Name, err))
		}
		if err := r.nm.Delete(ctx, c.Name); err != nil && !nm.IsNotFound(err) {
			l.Error("connection_delete_failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err),
				"connection", c.Name,
				"operation", "cleanup",
			)
			return apperr.Fail(apperr.ErrCleanupFailed,
				fmt.Errorf("cleanup %s: delete %s: %w", apIf, c.Name, err))
		}
	}

	for _, c := range conns {
		if c.Type != nm.TypeWiFiConnection || c.Name == HotspotProfile {
			continue
		}
		if !duplicatePattern.MatchString(c.Name) {
			continue
		}
		l.Info("cleanup_duplicate_profile",
			"connection", c.Name,
			"operation", "cleanup",
		)
		// Possibly already gone via the active-profile pass above.
		if err := r.nm.Delete(ctx, c.Name); err != nil && !nm.IsNotFound(err) {
			l.Error("duplicate_delete_failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err),
				"connection", c.Name,
				"operation", "cleanup",
			)
			return apperr.Fail(apperr.ErrCleanupFailed,
				fmt.Errorf("cleanup %s: delete duplicate %s: %w", apIf, c.Name, err))
		}
	}
	return nil
}
