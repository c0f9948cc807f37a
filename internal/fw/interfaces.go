package fw

// Applier abstracts the kernel nftables operations for testability.
// The real implementation translates rules into google/nftables API calls.
// All rules live in a dedicated "hotspot" nftables table to avoid conflicts
// with existing firewall rules.
type Applier interface {
	// Apply replaces all rules in the hotspot nftables table with the
	// given set. An empty slice removes all rules (deletes the table).
	Apply(rules []Rule) error

	// List returns the recognized rules currently installed in the
	// hotspot table. A missing table yields an empty set, not an error.
	List() ([]Rule, error)
}
