package fw

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
)

const tableName = "hotspot"

// nftApplier implements Applier using the google/nftables library.
type nftApplier struct{}

// NewApplier creates an Applier that uses the kernel nftables API.
// Requires CAP_NET_ADMIN capability.
func NewApplier() Applier {
	return &nftApplier{}
}

func (a *nftApplier) Apply(rules []Rule) error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("nftables connect: %w", err)
	}

	// Delete the existing hotspot table if it exists.
	tables, err := conn.ListTables()
	if err != nil {
		return fmt.Errorf("nftables list tables: %w", err)
	}
	for _, t := range tables {
		if t.Name == tableName && t.Family == nftables.TableFamilyIPv4 {
			conn.DelTable(t)
			if err := conn.Flush(); err != nil {
				return fmt.Errorf("nftables delete table: %w", err)
			}
			break
		}
	}

	if len(rules) == 0 {
		return nil
	}

	// Create fresh table.
	table := conn.AddTable(&nftables.Table{
		Name:   tableName,
		Family: nftables.TableFamilyIPv4,
	})

	// Separate rules by chain type.
	var natRules, forwardRules []Rule
	for _, r := range rules {
		switch r.Kind {
		case RuleMasquerade:
			natRules = append(natRules, r)
		case RuleForward, RuleReturn:
			forwardRules = append(forwardRules, r)
		}
	}

	// Postrouting chain for NAT masquerade.
	if len(natRules) > 0 {
		chain := conn.AddChain(&nftables.Chain{
			Name:     "postrouting",
			Table:    table,
			Type:     nftables.ChainTypeNAT,
			Hooknum:  nftables.ChainHookPostrouting,
			Priority: nftables.ChainPriorityNATSource,
		})
		for _, r := range natRules {
			exprs, err := masqueradeExprs(r)
			if err != nil {
				return fmt.Errorf("build masquerade rule: %w", err)
			}
			conn.AddRule(&nftables.Rule{
				Table: table,
				Chain: chain,
				Exprs: exprs,
			})
		}
	}

	// Forward chain for client traffic and return traffic.
	if len(forwardRules) > 0 {
		chain := conn.AddChain(&nftables.Chain{
			Name:     "forward",
			Table:    table,
			Type:     nftables.ChainTypeFilter,
			Hooknum:  nftables.ChainHookForward,
			Priority: nftables.ChainPriorityFilter,
		})
		for _, r := range forwardRules {
			var exprs []expr.Any
			if r.Kind == RuleForward {
				exprs = forwardExprs(r.APIface, r.Uplink)
			} else {
				exprs = returnExprs(r.Uplink, r.APIface)
			}
			conn.AddRule(&nftables.Rule{
				Table: table,
				Chain: chain,
				Exprs: exprs,
			})
		}
	}

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("nftables flush: %w", err)
	}
	return nil
}

func (a *nftApplier) List() ([]Rule, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("nftables connect: %w", err)
	}

	tables, err := conn.ListTables()
	if err != nil {
		return nil, fmt.Errorf("nftables list tables: %w", err)
	}
	var table *nftables.Table
	for _, t := range tables {
		if t.Name == tableName && t.Family == nftables.TableFamilyIPv4 {
			table = t
			break
		}
	}
	if table == nil {
		return nil, nil
	}

	chains, err := conn.ListChains()
	if err != nil {
		return nil, fmt.Errorf("nftables list chains: %w", err)
	}

	var rules []Rule
	for _, chain := range chains {
		if chain.Table == nil || chain.Table.Name != tableName ||
			chain.Table.Family != nftables.TableFamilyIPv4 {
			continue
		}
		kernelRules, err := conn.GetRules(table, chain)
		if err != nil {
			return nil, fmt.Errorf("nftables get rules for %s: %w", chain.Name, err)
		}
		for _, kr := range kernelRules {
			if r, ok := decodeExprs(kr.Exprs); ok {
				rules = append(rules, r)
			}
		}
	}
	return rules, nil
}

// masqueradeExprs builds nftables expressions for:
//
//	ip saddr <subnet> oifname <uplink> masquerade
func masqueradeExprs(r Rule) ([]expr.Any, error) {
	_, ipnet, err := net.ParseCIDR(r.Subnet)
	if err != nil {
		return nil, fmt.Errorf("parse subnet %q: %w", r.Subnet, err)
	}
	ip := ipnet.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("subnet %q is not IPv4", r.Subnet)
	}

	return []expr.Any{
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseNetworkHeader,
			Offset:       12, // IPv4 source address
			Len:          4,
		},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           ipnet.Mask,
			Xor:            []byte{0, 0, 0, 0},
		},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ip},
		&expr.Meta{Key: expr.MetaKeyOIFNAME, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifaceBytes(r.Uplink)},
		&expr.Masq{},
	}, nil
}

// forwardExprs builds nftables expressions for:
//
//	iifname <in> oifname <out> accept
func forwardExprs(ifaceIn, ifaceOut string) []expr.Any {
	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyIIFNAME, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifaceBytes(ifaceIn)},
		&expr.Meta{Key: expr.MetaKeyOIFNAME, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifaceBytes(ifaceOut)},
		&expr.Verdict{Kind: expr.VerdictAccept},
	}
}

// returnExprs builds nftables expressions for:
//
//	iifname <in> oifname <out> ct state established,related accept
func returnExprs(ifaceIn, ifaceOut string) []expr.Any {
	stateMask := binaryutil.NativeEndian.PutUint32(
		expr.CtStateBitESTABLISHED | expr.CtStateBitRELATED)

	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyIIFNAME, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifaceBytes(ifaceIn)},
		&expr.Meta{Key: expr.MetaKeyOIFNAME, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifaceBytes(ifaceOut)},
		&expr.Ct{Register: 1, Key: expr.CtKeySTATE},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           stateMask,
			Xor:            []byte{0, 0, 0, 0},
		},
		&expr.Cmp{Op: expr.CmpOpNeq, Register: 1, Data: []byte{0, 0, 0, 0}},
		&expr.Verdict{Kind: expr.VerdictAccept},
	}
}

// decodeExprs recognizes the three rule shapes this tool installs and maps
// them back to Rules. Anything else in the table is left alone.
func decodeExprs(exprs []expr.Any) (Rule, bool) {
	if r, ok := decodeMasquerade(exprs); ok {
		return r, true
	}
	if r, ok := decodeForward(exprs); ok {
		return r, true
	}
	if r, ok := decodeReturn(exprs); ok {
		return r, true
	}
	return Rule{}, false
}

func decodeMasquerade(e []expr.Any) (Rule, bool) {
	if len(e) != 6 {
		return Rule{}, false
	}
	payload, ok := e[0].(*expr.Payload)
	if !ok || payload.Base != expr.PayloadBaseNetworkHeader ||
		payload.Offset != 12 || payload.Len != 4 {
		return Rule{}, false
	}
	bw, ok := e[1].(*expr.Bitwise)
	if !ok || len(bw.Mask) != 4 {
		return Rule{}, false
	}
	cmpNet, ok := e[2].(*expr.Cmp)
	if !ok || cmpNet.Op != expr.CmpOpEq || len(cmpNet.Data) != 4 {
		return Rule{}, false
	}
	meta, ok := e[3].(*expr.Meta)
	if !ok || meta.Key != expr.MetaKeyOIFNAME {
		return Rule{}, false
	}
	cmpIf, ok := e[4].(*expr.Cmp)
	if !ok || cmpIf.Op != expr.CmpOpEq {
		return Rule{}, false
	}
	if _, ok := e[5].(*expr.Masq); !ok {
		return Rule{}, false
	}

	subnet := &net.IPNet{IP: net.IP(cmpNet.Data), Mask: net.IPMask(bw.Mask)}
	return Rule{
		Kind:   RuleMasquerade,
		Uplink: ifaceString(cmpIf.Data),
		Subnet: subnet.String(),
	}, true
}

func decodeForward(e []expr.Any) (Rule, bool) {
	if len(e) != 5 {
		return Rule{}, false
	}
	in, ok := ifnameCmp(e[0], e[1], expr.MetaKeyIIFNAME)
	if !ok {
		return Rule{}, false
	}
	out, ok := ifnameCmp(e[2], e[3], expr.MetaKeyOIFNAME)
	if !ok {
		return Rule{}, false
	}
	verdict, ok := e[4].(*expr.Verdict)
	if !ok || verdict.Kind != expr.VerdictAccept {
		return Rule{}, false
	}
	return Rule{Kind: RuleForward, APIface: in, Uplink: out}, true
}

func decodeReturn(e []expr.Any) (Rule, bool) {
	if len(e) != 8 {
		return Rule{}, false
	}
	in, ok := ifnameCmp(e[0], e[1], expr.MetaKeyIIFNAME)
	if !ok {
		return Rule{}, false
	}
	out, ok := ifnameCmp(e[2], e[3], expr.MetaKeyOIFNAME)
	if !ok {
		return Rule{}, false
	}
	ct, ok := e[4].(*expr.Ct)
	if !ok || ct.Key != expr.CtKeySTATE {
		return Rule{}, false
	}
	if _, ok := e[5].(*expr.Bitwise); !ok {
		return Rule{}, false
	}
	cmp, ok := e[6].(*expr.Cmp)
	if !ok || cmp.Op != expr.CmpOpNeq {
		return Rule{}, false
	}
	verdict, ok := e[7].(*expr.Verdict)
	if !ok || verdict.Kind != expr.VerdictAccept {
		return Rule{}, false
	}
	return Rule{Kind: RuleReturn, Uplink: in, APIface: out}, true
}

// ifnameCmp matches a Meta load + Cmp eq pair against the given meta key and
// returns the compared interface name.
func ifnameCmp(metaExpr, cmpExpr expr.Any, key expr.MetaKey) (string, bool) {
	meta, ok := metaExpr.(*expr.Meta)
	if !ok || meta.Key != key {
		return "", false
	}
	cmp, ok := cmpExpr.(*expr.Cmp)
	if !ok || cmp.Op != expr.CmpOpEq {
		return "", false
	}
	return ifaceString(cmp.Data), true
}

// ifaceBytes returns the interface name as a null-terminated byte slice
// for use in nftables comparison expressions.
func ifaceBytes(iface string) []byte {
	b := make([]byte, len(iface)+1)
	copy(b, iface)
	return b
}

// ifaceString reverses ifaceBytes.
func ifaceString(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

// noopApplier is an Applier that accepts everything and remembers nothing.
// Used for testing.
type noopApplier struct{}

func (noopApplier) Apply([]Rule) error    { return nil }
func (noopApplier) List() ([]Rule, error) { return nil, nil }
