package errors

// Error code constants recorded in journal entries and structured logs.
const (
	// Classification errors
	ErrNoAPCandidate     = "NO_AP_CANDIDATE"
	ErrInterfaceConflict = "INTERFACE_CONFLICT"
	ErrAdapterAbsent     = "ADAPTER_ABSENT"

	// Hotspot errors
	ErrProfileCreateFailed = "PROFILE_CREATE_FAILED"
	ErrProfileUpFailed     = "PROFILE_UP_FAILED"
	ErrCleanupFailed       = "CLEANUP_FAILED"

	// Forwarding errors
	ErrForwardingFailed = "FORWARDING_FAILED"
	ErrPersistFailed    = "PERSIST_FAILED"

	// System errors
	ErrNotPrivileged     = "NOT_PRIVILEGED"
	ErrLockBusy          = "LOCK_BUSY"
	ErrNMUnavailable     = "NETWORK_MANAGER_UNAVAILABLE"
	ErrNFTablesUnavail   = "NFTABLES_UNAVAILABLE"
	ErrCapabilityMissing = "CAPABILITY_MISSING"

	// General
	ErrInternal = "INTERNAL_ERROR"
)
