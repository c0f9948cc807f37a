package svc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// DefaultMDNSUnit is the mDNS responder that advertises the kit's .local
// hostname to hotspot clients.
const DefaultMDNSUnit = "avahi-daemon"

// Controller abstracts systemd unit control for testability.
// The real implementation shells out to systemctl.
type Controller interface {
	// Restart restarts a unit.
	Restart(ctx context.Context, unit string) error

	// IsActive reports whether a unit is currently active.
	IsActive(ctx context.Context, unit string) (bool, error)
}

// systemctlController implements Controller via the systemctl binary.
type systemctlController struct {
	logger *slog.Logger
}

// NewController creates a Controller backed by systemctl.
func NewController(logger *slog.Logger) (Controller, error) {
	if logger == nil {
		return nil, fmt.Errorf("new svc controller: logger is required")
	}
	return &systemctlController{
		logger: logger.With("component", "svc"),
	}, nil
}

func (c *systemctlController) Restart(ctx context.Context, unit string) error {
	c.logger.Debug("systemctl_restart", "unit", unit)

	cmd := exec.CommandContext(ctx, "systemctl", "restart", unit)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl restart %s: %w: %s", unit, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (c *systemctlController) IsActive(ctx context.Context, unit string) (bool, error) {
	cmd := exec.CommandContext(ctx, "systemctl", "is-active", unit)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	// is-active exits nonzero for any not-active state and prints it.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("systemctl is-active %s: %w", unit, err)
}
