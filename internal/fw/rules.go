package fw

import (
	"fmt"
	"sort"
	"strings"
)

// RuleKind identifies the type of nftables rule.
type RuleKind string

const (
	// RuleMasquerade NATs hotspot client traffic out the uplink.
	RuleMasquerade RuleKind = "masquerade"
	// RuleForward accepts forwarded traffic from the AP interface to the uplink.
	RuleForward RuleKind = "forward"
	// RuleReturn accepts established/related return traffic from the uplink.
	RuleReturn RuleKind = "return"
)

// Rule represents a managed nftables rule in the hotspot table.
type Rule struct {
	Kind    RuleKind
	APIface string // hotspot-side interface (unused for masquerade)
	Uplink  string // internet-side interface
	Subnet  string // hotspot subnet CIDR, for masquerade rules
}

// ruleKey returns a unique identifier for the rule, used for equivalence
// checks between desired and installed rules.
func ruleKey(r Rule) string {
	switch r.Kind {
	case RuleMasquerade:
		return "masq:" + r.Subnet + ":" + r.Uplink
	case RuleForward:
		return "fwd:" + r.APIface + ":" + r.Uplink
	case RuleReturn:
		return "ret:" + r.Uplink + ":" + r.APIface
	default:
		return fmt.Sprintf("unknown:%s:%s:%s", r.Kind, r.APIface, r.Uplink)
	}
}

// SyncReport describes what a Sync did: rules that were already installed,
// rules it added, and stale rules it dropped.
type SyncReport struct {
	Satisfied []Rule
	Applied   []Rule
	Removed   []Rule
}

// Changed reports whether Sync had to touch the kernel at all.
func (r *SyncReport) Changed() bool {
	return len(r.Applied)+len(r.Removed) > 0
}

// diffRules compares the installed set against the desired set by rule key.
func diffRules(active, desired []Rule) *SyncReport {
	activeKeys := make(map[string]bool, len(active))
	for _, r := range active {
		activeKeys[ruleKey(r)] = true
	}

	report := &SyncReport{}
	desiredKeys := make(map[string]bool, len(desired))
	for _, r := range desired {
		k := ruleKey(r)
		if desiredKeys[k] {
			continue
		}
		desiredKeys[k] = true
		if activeKeys[k] {
			report.Satisfied = append(report.Satisfied, r)
		} else {
			report.Applied = append(report.Applied, r)
		}
	}
	for _, r := range active {
		if !desiredKeys[ruleKey(r)] {
			report.Removed = append(report.Removed, r)
		}
	}
	return report
}

// sortRules orders rules by key for deterministic application and output.
func sortRules(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	sort.Slice(out, func(i, j int) bool {
		return ruleKey(out[i]) < ruleKey(out[j])
	})
	return out
}

// FormatRuleset renders rules as an nft-syntax table block. The output is
// loadable with `nft -f` and doubles as the human-readable dump.
func FormatRuleset(rules []Rule) string {
	if len(rules) == 0 {
		return "table ip hotspot {\n}"
	}

	var natLines, fwdLines []string
	for _, r := range sortRules(rules) {
		switch r.Kind {
		case RuleMasquerade:
			natLines = append(natLines, fmt.Sprintf(
				"    ip saddr %s oifname %q masquerade", r.Subnet, r.Uplink))
		case RuleForward:
			fwdLines = append(fwdLines, fmt.Sprintf(
				"    iifname %q oifname %q accept", r.APIface, r.Uplink))
		case RuleReturn:
			fwdLines = append(fwdLines, fmt.Sprintf(
				"    iifname %q oifname %q ct state established,related accept",
				r.Uplink, r.APIface))
		}
	}

	var b strings.Builder
	b.WriteString("table ip hotspot {\n")

	if len(natLines) > 0 {
		b.WriteString("  chain postrouting {\n")
		b.WriteString("    type nat hook postrouting priority 100;\n")
		for _, line := range natLines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteString("  }\n")
	}

	if len(fwdLines) > 0 {
		b.WriteString("  chain forward {\n")
		b.WriteString("    type filter hook forward priority 0;\n")
		for _, line := range fwdLines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteString("  }\n")
	}

	b.WriteByte('}')
	return b.String()
}
