package fw

import (
	"fmt"
	"os"
	"strings"
)

// ProcIPForward is the kernel's IPv4 forwarding switch.
const ProcIPForward = "/proc/sys/net/ipv4/ip_forward"

// EnableIPForward makes sure the IPv4 forwarding sysctl is on, writing only
// when it is not already "1". Forwarding is never turned back off by this
// tool. The path is a parameter so tests can point it at a plain file.
func EnableIPForward(path string) (EnsureResult, error) {
	current, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if strings.TrimSpace(string(current)) == "1" {
		return ResultSatisfied, nil
	}

	if err := os.WriteFile(path, []byte("1\n"), 0o644); err != nil {
		return "", fmt.Errorf("enable ip forwarding: %w", err)
	}
	return ResultApplied, nil
}

// IPForwardEnabled reports the current state of the forwarding sysctl
// without touching it.
func IPForwardEnabled(path string) (bool, error) {
	current, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	return strings.TrimSpace(string(current)) == "1", nil
}
