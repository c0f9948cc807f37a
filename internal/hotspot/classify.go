package hotspot

import (
	"context"
	"fmt"
	"sort"

	apperr "github.com/fieldkit/hotspotd/internal/errors"
	"github.com/fieldkit/hotspotd/internal/netdev"
	"github.com/fieldkit/hotspotd/internal/nm"
)

// Classification is the per-run role assignment for the kit's WiFi adapters.
type Classification struct {
	// STA is the upstream interface, empty in local-only mode.
	STA string
	// STAProfile is the connection active on the STA interface.
	STAProfile string
	// APInterface is the adapter chosen to run the hotspot.
	APInterface string
	// APCandidates lists every usable AP adapter, USB-attached first.
	APCandidates []string
}

// Classify assigns roles to the kit's WiFi adapters from live system state.
// With an override the adapter must exist (absence is a soft skip: the
// removable adapter may simply be unplugged) and must not be the active
// uplink. Without one the first candidate wins, USB bus first so the
// built-in radio stays free for STA duty; no candidate at all is fatal.
func (r *Reconciler) Classify(ctx context.Context, override string) (Classification, error) {
	l := r.ctxLogger(ctx)

	devices, err := r.devs.Wireless()
	if err != nil {
		l.Error("enumerate_wireless_failed",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"operation", "classify",
		)
		return Classification{}, fmt.Errorf("classify: enumerate wireless devices: %w", err)
	}

	statuses, err := r.nm.Devices(ctx)
	if err != nil {
		l.Error("nm_device_status_failed",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"operation", "classify",
		)
		return Classification{}, fmt.Errorf("classify: device status: %w", err)
	}

	stateByName := make(map[string]nm.DeviceStatus, len(statuses))
	for _, s := range statuses {
		if s.Type == nm.TypeWiFiDevice {
			stateByName[s.Device] = s
		}
	}

	var cls Classification

	// The STA is the connected WiFi device whose active profile is not
	// ours. The hotspot itself reports "connected" too and must not be
	// mistaken for an uplink.
	for _, d := range devices {
		s, ok := stateByName[d.Name]
		if !ok {
			continue
		}
		if s.State == nm.StateConnected && s.Connection != HotspotProfile {
			cls.STA = d.Name
			cls.STAProfile = s.Connection
			break
		}
	}

	candidates := make([]netdev.Device, 0, len(devices))
	for _, d := range devices {
		if d.Name == cls.STA {
			continue
		}
		candidates = append(candidates, d)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return busRank(candidates[i].Bus) < busRank(candidates[j].Bus)
	})
	for _, d := range candidates {
		cls.APCandidates = append(cls.APCandidates, d.Name)
	}

	if override != "" {
		exists, err := r.devs.Exists(override)
		if err != nil {
			l.Error("link_lookup_failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err),
				"interface", override,
				"operation", "classify",
			)
			return Classification{}, fmt.Errorf("classify: check interface %s: %w", override, err)
		}
		if !exists {
			l.Warn("override_adapter_absent",
				"interface", override,
				"operation", "classify",
			)
			return Classification{}, apperr.Absencef(apperr.ErrAdapterAbsent,
				"interface %s not present", override)
		}
		if override == cls.STA {
			l.Error("override_is_uplink",
				"interface", override,
				"sta_profile", cls.STAProfile,
				"operation", "classify",
			)
			return Classification{}, apperr.Preconditionf(apperr.ErrInterfaceConflict,
				"interface %s is the active uplink (%s); one radio cannot serve both roles", override, cls.STAProfile)
		}
		cls.APInterface = override
		l.Info("classified",
			"ap_interface", cls.APInterface,
			"ap_source", "override",
			"sta_interface", cls.STA,
			"local_only", cls.STA == "",
			"operation", "classify",
		)
		return cls, nil
	}

	if len(cls.APCandidates) == 0 {
		l.Error("no_ap_candidate",
			"wifi_devices", len(devices),
			"sta_interface", cls.STA,
			"operation", "classify",
		)
		return Classification{}, apperr.Preconditionf(apperr.ErrNoAPCandidate,
			"no AP-capable WiFi interface available")
	}

	cls.APInterface = cls.APCandidates[0]
	l.Info("classified",
		"ap_interface", cls.APInterface,
		"ap_source", "auto",
		"sta_interface", cls.STA,
		"candidates", len(cls.APCandidates),
		"local_only", cls.STA == "",
		"operation", "classify",
	)
	return cls, nil
}

// busRank orders buses by AP preference: removable USB adapters first, the
// built-in PCI radio last among the known buses.
func busRank(b netdev.Bus) int {
	switch b {
	case netdev.BusUSB:
		return 0
	case netdev.BusPCI:
		return 1
	default:
		return 2
	}
}
