package fw

import (
	"fmt"
	"log/slog"
	"sync"
)

// EnsureResult reports the outcome of an idempotent ensure operation.
type EnsureResult string

const (
	ResultSatisfied EnsureResult = "already_satisfied"
	ResultApplied   EnsureResult = "newly_applied"
)

// Manager reconciles the kernel's hotspot nftables table against a desired
// rule set via an Applier.
type Manager struct {
	applier Applier
	logger  *slog.Logger
	devMode bool

	mu sync.Mutex
}

// NewManager creates a Manager with the given dependencies.
func NewManager(applier Applier, logger *slog.Logger, devMode bool) (*Manager, error) {
	if applier == nil {
		return nil, fmt.Errorf("new fw manager: applier is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("new fw manager: logger is required")
	}
	return &Manager{
		applier: applier,
		logger:  logger.With("component", "fw"),
		devMode: devMode,
	}, nil
}

// NewTestManager creates a Manager with a no-op applier for testing.
func NewTestManager(logger *slog.Logger, devMode bool) (*Manager, error) {
	return NewManager(noopApplier{}, logger, devMode)
}

// Sync reconciles the kernel table to exactly the given rule set. When the
// installed rules already match, the kernel is not touched at all; any
// difference replaces the whole table content. The report says per rule
// whether it was already satisfied, newly applied, or removed as stale.
func (m *Manager) Sync(desired []Rule) (*SyncReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Debug("fw_sync_start",
		"desired", len(desired),
		"operation", "sync",
	)

	active, err := m.applier.List()
	if err != nil {
		m.logger.Error("fw_list_failed",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"operation", "sync",
		)
		return nil, fmt.Errorf("list firewall rules: %w", err)
	}

	report := diffRules(active, desired)
	if !report.Changed() {
		m.logger.Debug("fw_sync_idempotent",
			"rules", len(desired),
			"operation", "sync",
		)
		return report, nil
	}

	if err := m.applier.Apply(sortRules(desired)); err != nil {
		m.logger.Error("fw_apply_failed",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"operation", "sync",
			"desired", len(desired),
		)
		return nil, fmt.Errorf("apply firewall rules: %w", err)
	}

	m.logDevDump("sync", desired)
	m.logger.Info("fw_synced",
		"satisfied", len(report.Satisfied),
		"applied", len(report.Applied),
		"removed", len(report.Removed),
		"operation", "sync",
	)
	return report, nil
}

// Clear removes every managed rule. Safe to call when the table is already
// gone.
func (m *Manager) Clear() (*SyncReport, error) {
	return m.Sync(nil)
}

// Active returns the rules currently installed in the kernel table, sorted.
func (m *Manager) Active() ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rules, err := m.applier.List()
	if err != nil {
		return nil, fmt.Errorf("list firewall rules: %w", err)
	}
	return sortRules(rules), nil
}

// logDevDump logs the full ruleset after a change in dev mode.
// Must be called with m.mu held.
func (m *Manager) logDevDump(action string, rules []Rule) {
	if !m.devMode {
		return
	}
	m.logger.Debug("fw_ruleset_after_change",
		"action", action,
		"ruleset", FormatRuleset(rules),
	)
}
