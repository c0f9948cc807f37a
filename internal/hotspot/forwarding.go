package hotspot

import (
	"context"
	"fmt"

	apperr "github.com/fieldkit/hotspotd/internal/errors"
	"github.com/fieldkit/hotspotd/internal/fw"
)

// EnsureForwarding points hotspot client traffic at the uplink: kernel IPv4
// forwarding on, one masquerade for the hotspot subnet out staIf, and the
// two forward accepts (AP to uplink unconditional, uplink to AP only for
// established/related flows). With no uplink the kit runs local-only and
// the firewall is left completely untouched. The returned flag says whether
// anything had to change.
func (r *Reconciler) EnsureForwarding(ctx context.Context, apIf, staIf, subnet string, persist bool) (bool, error) {
	l := r.ctxLogger(ctx)

	if staIf == "" {
		l.Warn("forwarding_skipped_local_only",
			"ap_interface", apIf,
			"operation", "forwarding",
		)
		return false, nil
	}

	fwdRes, err := fw.EnableIPForward(r.procIPForward)
	if err != nil {
		l.Error("ip_forward_failed",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"operation", "forwarding",
		)
		return false, apperr.Fail(apperr.ErrForwardingFailed,
			fmt.Errorf("enable ip forwarding: %w", err))
	}

	desired := []fw.Rule{
		{Kind: fw.RuleMasquerade, Uplink: staIf, Subnet: subnet},
		{Kind: fw.RuleForward, APIface: apIf, Uplink: staIf},
		{Kind: fw.RuleReturn, APIface: apIf, Uplink: staIf},
	}
	report, err := r.fw.Sync(desired)
	if err != nil {
		return false, apperr.Fail(apperr.ErrForwardingFailed,
			fmt.Errorf("sync firewall rules: %w", err))
	}
	changed := report.Changed() || fwdRes == fw.ResultApplied

	if persist && r.persist != nil {
		artifacts, err := r.persist.Save(desired, apIf)
		if err != nil {
			return changed, apperr.Fail(apperr.ErrPersistFailed,
				fmt.Errorf("write persisted artifacts: %w", err))
		}
		for _, a := range artifacts {
			if a.Result == fw.ResultApplied {
				changed = true
			}
		}
	}

	l.Info("forwarding_ensured",
		"ap_interface", apIf,
		"sta_interface", staIf,
		"subnet", subnet,
		"ip_forward", string(fwdRes),
		"satisfied", len(report.Satisfied),
		"applied", len(report.Applied),
		"removed", len(report.Removed),
		"persisted", persist,
		"operation", "forwarding",
	)
	return changed, nil
}
