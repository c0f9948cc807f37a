package nm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	apperr "github.com/fieldkit/hotspotd/internal/errors"
)

// nmcli exit codes from nmcli(1).
const (
	exitNotRunning = 8  // NetworkManager is not running
	exitNotFound   = 10 // connection, device, or AP does not exist
)

// CmdError carries a failed nmcli invocation's exit code and stderr.
type CmdError struct {
	Args   []string
	Code   int
	Stderr string
}

func (e *CmdError) Error() string {
	return fmt.Sprintf("nmcli %s: exit %d: %s", strings.Join(e.Args, " "), e.Code, e.Stderr)
}

// IsNotFound reports whether err is nmcli's "does not exist" failure, which
// Down and Delete callers treat as already-done.
func IsNotFound(err error) bool {
	var ce *CmdError
	return errors.As(err, &ce) && ce.Code == exitNotFound
}

// nmcliClient implements Client by shelling out to nmcli.
type nmcliClient struct {
	logger *slog.Logger
}

// NewClient creates a Client backed by the nmcli binary.
func NewClient(logger *slog.Logger) (Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("new nm client: logger is required")
	}
	return &nmcliClient{
		logger: logger.With("component", "nm"),
	}, nil
}

func (c *nmcliClient) Devices(ctx context.Context) ([]DeviceStatus, error) {
	out, err := c.output(ctx, "-t", "-f", "DEVICE,TYPE,STATE,CONNECTION", "device", "status")
	if err != nil {
		return nil, err
	}
	return parseDeviceRows(out)
}

func (c *nmcliClient) Connections(ctx context.Context) ([]Connection, error) {
	out, err := c.output(ctx, "-t", "-f", "NAME,TYPE,DEVICE", "connection", "show")
	if err != nil {
		return nil, err
	}
	return parseConnectionRows(out)
}

func (c *nmcliClient) AddHotspot(ctx context.Context, p HotspotParams) error {
	_, err := c.output(ctx, hotspotArgs(p)...)
	return err
}

func (c *nmcliClient) Modify(ctx context.Context, name string, props map[string]string) error {
	_, err := c.output(ctx, modifyArgs(name, props)...)
	return err
}

func (c *nmcliClient) Property(ctx context.Context, name, property string) (string, error) {
	out, err := c.output(ctx, "-g", property, "connection", "show", name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *nmcliClient) Up(ctx context.Context, name string) error {
	_, err := c.output(ctx, "connection", "up", name)
	return err
}

func (c *nmcliClient) Down(ctx context.Context, name string) error {
	_, err := c.output(ctx, "connection", "down", name)
	return err
}

func (c *nmcliClient) Delete(ctx context.Context, name string) error {
	_, err := c.output(ctx, "connection", "delete", name)
	return err
}

// hotspotArgs assembles the `connection add` argv for an AP profile:
// AP mode on the 2.4GHz band, shared IPv4 (NetworkManager brings up
// dnsmasq and addressing), WPA2-PSK.
func hotspotArgs(p HotspotParams) []string {
	args := []string{
		"connection", "add",
		"type", "wifi",
		"ifname", p.Iface,
		"con-name", p.Name,
		"ssid", p.SSID,
		"802-11-wireless.mode", "ap",
		"802-11-wireless.band", "bg",
	}
	if p.Channel > 0 {
		args = append(args, "802-11-wireless.channel", strconv.Itoa(p.Channel))
	}
	args = append(args,
		"ipv4.method", "shared",
		"wifi-sec.key-mgmt", "wpa-psk",
		"wifi-sec.psk", p.Password,
	)
	return args
}

// modifyArgs assembles the `connection modify` argv with properties in
// sorted order so logs stay stable.
func modifyArgs(name string, props map[string]string) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := []string{"connection", "modify", name}
	for _, k := range keys {
		args = append(args, k, props[k])
	}
	return args
}

func (c *nmcliClient) output(ctx context.Context, args ...string) (string, error) {
	c.logger.Debug("nmcli_exec", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "nmcli", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cmdErr := &CmdError{
				Args:   args,
				Code:   exitErr.ExitCode(),
				Stderr: strings.TrimSpace(stderr.String()),
			}
			if cmdErr.Code == exitNotRunning {
				return "", apperr.Precondition(apperr.ErrNMUnavailable, cmdErr)
			}
			return "", cmdErr
		}
		if errors.Is(err, exec.ErrNotFound) {
			return "", apperr.Precondition(apperr.ErrNMUnavailable, err)
		}
		return "", fmt.Errorf("nmcli %s: %w", strings.Join(args, " "), err)
	}

	return stdout.String(), nil
}
