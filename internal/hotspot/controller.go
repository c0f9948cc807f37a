package hotspot

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	apperr "github.com/fieldkit/hotspotd/internal/errors"
	"github.com/fieldkit/hotspotd/internal/nm"
)

// EnsureHotspot converges the "Hotspot" profile on apIf: already active
// means nothing to do, anything else is torn down and recreated with the
// given parameters so a changed SSID or password always takes effect. The
// returned subnet is the observed shared-mode network, falling back to
// NetworkManager's default when addressing never settles.
func (r *Reconciler) EnsureHotspot(ctx context.Context, apIf string, p StartParams) (string, EnsureResult, error) {
	l := r.ctxLogger(ctx)

	conns, err := r.nm.Connections(ctx)
	if err != nil {
		l.Error("list_connections_failed",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"operation", "ensure_hotspot",
		)
		return "", "", fmt.Errorf("ensure hotspot: list connections: %w", err)
	}
	for _, c := range conns {
		if c.Name == HotspotProfile && c.Device == apIf {
			subnet := r.settleSubnet(ctx, apIf)
			l.Info("hotspot_already_active",
				"interface", apIf,
				"subnet", subnet,
				"operation", "ensure_hotspot",
			)
			return subnet, ResultSatisfied, nil
		}
	}

	// A stale profile (inactive, or bound to another adapter) goes away
	// entirely; modifying in place would leave old credentials behind on
	// failure.
	if err := r.nm.Down(ctx, HotspotProfile); err != nil && !nm.IsNotFound(err) {
		l.Error("stale_hotspot_down_failed",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"operation", "ensure_hotspot",
		)
		return "", "", apperr.Fail(apperr.ErrCleanupFailed,
			fmt.Errorf("ensure hotspot: down stale profile: %w", err))
	}
	if err := r.nm.Delete(ctx, HotspotProfile); err != nil && !nm.IsNotFound(err) {
		l.Error("stale_hotspot_delete_failed",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"operation", "ensure_hotspot",
		)
		return "", "", apperr.Fail(apperr.ErrCleanupFailed,
			fmt.Errorf("ensure hotspot: delete stale profile: %w", err))
	}

	params := nm.HotspotParams{
		Name:     HotspotProfile,
		Iface:    apIf,
		SSID:     p.SSID,
		Password: p.Password,
		Channel:  p.Channel,
	}
	if err := r.nm.AddHotspot(ctx, params); err != nil {
		l.Error("hotspot_create_failed",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"interface", apIf,
			"ssid", p.SSID,
			"operation", "ensure_hotspot",
		)
		return "", "", apperr.Fail(apperr.ErrProfileCreateFailed,
			fmt.Errorf("create hotspot profile on %s: %w", apIf, err))
	}

	// Pin the profile to this adapter by name and make it win autoconnect
	// so NetworkManager cannot migrate it to the built-in radio on a
	// future boot.
	mods := map[string]string{
		"connection.autoconnect":          "yes",
		"connection.autoconnect-priority": "100",
		"connection.interface-name":       apIf,
	}
	if err := r.nm.Modify(ctx, HotspotProfile, mods); err != nil {
		l.Error("hotspot_modify_failed",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"interface", apIf,
			"operation", "ensure_hotspot",
		)
		r.discardPartial(ctx, l)
		return "", "", apperr.Fail(apperr.ErrProfileCreateFailed,
			fmt.Errorf("configure hotspot profile: %w", err))
	}

	if err := r.nm.Up(ctx, HotspotProfile); err != nil {
		l.Error("hotspot_up_failed",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"interface", apIf,
			"operation", "ensure_hotspot",
		)
		r.discardPartial(ctx, l)
		return "", "", apperr.Fail(apperr.ErrProfileUpFailed,
			fmt.Errorf("activate hotspot profile on %s: %w", apIf, err))
	}

	subnet := r.settleSubnet(ctx, apIf)
	l.Info("hotspot_created",
		"interface", apIf,
		"ssid", p.SSID,
		"channel", p.Channel,
		"subnet", subnet,
		"operation", "ensure_hotspot",
	)
	return subnet, ResultApplied, nil
}

// discardPartial best-effort deletes a half-created profile. No multi-step
// rollback: cleanup and forwarding state stay as they are.
func (r *Reconciler) discardPartial(ctx context.Context, l *slog.Logger) {
	if err := r.nm.Delete(ctx, HotspotProfile); err != nil && !nm.IsNotFound(err) {
		l.Warn("partial_profile_delete_failed",
			"error", err,
			"operation", "ensure_hotspot",
		)
	}
}

// settleSubnet polls for the shared-mode IPv4 network on the AP interface.
// Activation returns before addressing lands, so a few bounded attempts;
// when nothing shows up the stock shared-mode subnet is assumed rather
// than failing a working hotspot.
func (r *Reconciler) settleSubnet(ctx context.Context, apIf string) string {
	l := r.ctxLogger(ctx)
	for attempt := 1; attempt <= r.settleAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				l.Warn("settle_cancelled",
					"interface", apIf,
					"fallback", FallbackSubnet,
					"operation", "ensure_hotspot",
				)
				return FallbackSubnet
			case <-time.After(r.settleInterval):
			}
		}
		addrs, err := r.devs.Addresses(apIf)
		if err != nil {
			l.Debug("settle_addresses_failed",
				"error", err,
				"interface", apIf,
				"attempt", attempt,
				"operation", "ensure_hotspot",
			)
			continue
		}
		for _, a := range addrs {
			if subnet, ok := subnetOf(a); ok {
				l.Debug("settle_subnet_observed",
					"interface", apIf,
					"subnet", subnet,
					"attempt", attempt,
					"operation", "ensure_hotspot",
				)
				return subnet
			}
		}
	}
	l.Warn("settle_subnet_timeout",
		"interface", apIf,
		"fallback", FallbackSubnet,
		"attempts", r.settleAttempts,
		"operation", "ensure_hotspot",
	)
	return FallbackSubnet
}

// subnetOf converts an interface address (10.42.0.1/24) to its network
// (10.42.0.0/24). IPv6 and malformed entries are skipped.
func subnetOf(cidr string) (string, bool) {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil || ip.To4() == nil {
		return "", false
	}
	return ipNet.String(), true
}
