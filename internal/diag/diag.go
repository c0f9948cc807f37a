// Package diag implements the diagnose subcommand: environment checks that
// explain why a reconcile would fail before anything is mutated.
package diag

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	apperr "github.com/fieldkit/hotspotd/internal/errors"
)

// CheckStatus represents the result of a diagnostic check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds one diagnostic check outcome. Code carries the taxonomy
// code for failures that map onto one, so scripts can branch on it.
type CheckResult struct {
	Status  CheckStatus `json:"status"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
}

// DBStats holds journal database statistics.
type DBStats struct {
	Path          string         `json:"path"`
	Accessible    bool           `json:"accessible"`
	SchemaVersion int            `json:"schema_version"`
	Tables        map[string]int `json:"tables"`
}

// DiagnoseResult holds the complete diagnostic report.
type DiagnoseResult struct {
	Version   string        `json:"version"`
	GoVersion string        `json:"go_version"`
	OS        string        `json:"os"`
	Arch      string        `json:"arch"`
	Kernel    string        `json:"kernel"`
	Checks    []CheckResult `json:"checks"`
	DBStats   DBStats       `json:"database"`
}

// Config holds dependencies for the diagnose command.
type Config struct {
	Version    string
	DataDir    string
	DBPath     string
	JSONOutput bool
	Writer     io.Writer

	// sysClassNet and procRoot are overridable for tests.
	sysClassNet string
	procRoot    string
}

// Run executes all diagnostic checks and writes the report to the configured
// writer. Failed checks do not fail Run; the report is the product.
func Run(cfg Config) error {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.sysClassNet == "" {
		cfg.sysClassNet = "/sys/class/net"
	}
	if cfg.procRoot == "" {
		cfg.procRoot = "/proc"
	}

	result := DiagnoseResult{
		Version:   cfg.Version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Kernel:    detectKernelVersion(cfg.procRoot),
	}

	result.Checks = runChecks(cfg)
	result.DBStats = checkDatabase(cfg.DBPath)

	if cfg.JSONOutput {
		enc := json.NewEncoder(cfg.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	return writeTextReport(cfg.Writer, result)
}

func runChecks(cfg Config) []CheckResult {
	var checks []CheckResult

	checks = append(checks, checkNMCLI())
	checks = append(checks, checkWiFiAdapters(cfg.sysClassNet))
	checks = append(checks, checkIPForward(cfg.procRoot))
	checks = append(checks, checkNFTables(cfg.procRoot))
	checks = append(checks, checkCapabilities(cfg.procRoot))
	checks = append(checks, checkDataDir(cfg.DataDir))
	checks = append(checks, checkDBFile(cfg.DBPath))

	return checks
}

// checkNMCLI verifies the NetworkManager CLI is installed; every profile
// operation shells out to it.
func checkNMCLI() CheckResult {
	path, err := exec.LookPath("nmcli")
	if err != nil {
		return CheckResult{StatusFail, "nmcli not found in PATH; NetworkManager is required", apperr.ErrNMUnavailable}
	}
	return CheckResult{StatusPass, fmt.Sprintf("nmcli found at %s", path), ""}
}

// checkWiFiAdapters counts interfaces with a wireless subdirectory. Zero is
// only a warning: the USB adapter may simply be unplugged right now.
func checkWiFiAdapters(sysClassNet string) CheckResult {
	entries, err := os.ReadDir(sysClassNet)
	if err != nil {
		return CheckResult{StatusWarn, fmt.Sprintf("Cannot read %s", sysClassNet), ""}
	}
	count := 0
	for _, e := range entries {
		if _, err := os.Stat(filepath.Join(sysClassNet, e.Name(), "wireless")); err == nil {
			count++
		}
	}
	switch count {
	case 0:
		return CheckResult{StatusWarn, "No WiFi adapters present", apperr.ErrAdapterAbsent}
	case 1:
		return CheckResult{StatusWarn, "1 WiFi adapter present; hotspot plus uplink needs two", ""}
	default:
		return CheckResult{StatusPass, fmt.Sprintf("%d WiFi adapters present", count), ""}
	}
}

func checkIPForward(procRoot string) CheckResult {
	data, err := os.ReadFile(filepath.Join(procRoot, "sys/net/ipv4/ip_forward"))
	if err != nil {
		return CheckResult{StatusWarn, "Cannot read IPv4 forwarding status", ""}
	}
	if strings.TrimSpace(string(data)) == "1" {
		return CheckResult{StatusPass, "IP forwarding enabled", ""}
	}
	// start enables it; off beforehand is expected on a fresh kit.
	return CheckResult{StatusWarn, "IP forwarding disabled (start will enable it)", ""}
}

func checkNFTables(procRoot string) CheckResult {
	data, err := os.ReadFile(filepath.Join(procRoot, "modules"))
	if err != nil {
		return CheckResult{StatusWarn, "Cannot determine nftables status", ""}
	}
	if strings.Contains(string(data), "nf_tables") {
		return CheckResult{StatusPass, "nftables available", ""}
	}
	return CheckResult{StatusFail, "nf_tables kernel module not detected", apperr.ErrNFTablesUnavail}
}

// checkCapabilities parses CapEff from /proc/self/status. CAP_NET_ADMIN is
// bit 12; without it neither netlink nor nftables mutations work.
func checkCapabilities(procRoot string) CheckResult {
	data, err := os.ReadFile(filepath.Join(procRoot, "self/status"))
	if err != nil {
		return CheckResult{StatusWarn, "Cannot read process capabilities", ""}
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "CapEff:") {
			continue
		}
		hexVal := strings.TrimSpace(strings.TrimPrefix(line, "CapEff:"))
		var caps uint64
		fmt.Sscanf(hexVal, "%x", &caps)
		if caps&(1<<12) != 0 {
			return CheckResult{StatusPass, "CAP_NET_ADMIN capability", ""}
		}
		return CheckResult{StatusFail, "CAP_NET_ADMIN capability missing", apperr.ErrCapabilityMissing}
	}
	return CheckResult{StatusWarn, "Cannot parse process capabilities", ""}
}

func checkDataDir(dir string) CheckResult {
	if dir == "" {
		return CheckResult{StatusWarn, "Data directory not configured", ""}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return CheckResult{StatusFail, fmt.Sprintf("Data directory %s does not exist", dir), ""}
	}
	if !info.IsDir() {
		return CheckResult{StatusFail, fmt.Sprintf("%s is not a directory", dir), ""}
	}

	testFile := filepath.Join(dir, ".hotspotd_diag_test")
	if err := os.WriteFile(testFile, []byte("test"), 0600); err != nil {
		return CheckResult{StatusFail, fmt.Sprintf("Data directory %s is not writable", dir), ""}
	}
	os.Remove(testFile)

	return CheckResult{StatusPass, fmt.Sprintf("Data directory %s exists and writable", dir), ""}
}

func checkDBFile(path string) CheckResult {
	if path == "" {
		return CheckResult{StatusWarn, "Journal path not configured", ""}
	}
	if _, err := os.Stat(path); err != nil {
		// The journal is created on first run.
		return CheckResult{StatusWarn, fmt.Sprintf("Journal %s not created yet", path), ""}
	}
	return CheckResult{StatusPass, fmt.Sprintf("Journal %s accessible", path), ""}
}

func checkDatabase(path string) DBStats {
	stats := DBStats{
		Path:   path,
		Tables: make(map[string]int),
	}

	if path == "" {
		return stats
	}
	if _, err := os.Stat(path); err != nil {
		return stats
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return stats
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats.Accessible = true

	var count int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM _migrations").Scan(&count); err == nil {
		stats.SchemaVersion = count
	}
	var runs int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM reconcile_runs").Scan(&runs); err == nil {
		stats.Tables["reconcile_runs"] = runs
	}

	return stats
}

// detectKernelVersion returns the running kernel version string.
func detectKernelVersion(procRoot string) string {
	data, err := os.ReadFile(filepath.Join(procRoot, "version"))
	if err != nil {
		return "unknown"
	}
	fields := strings.Fields(string(data))
	if len(fields) >= 3 {
		return fields[2]
	}
	return "unknown"
}

func writeTextReport(w io.Writer, r DiagnoseResult) error {
	fmt.Fprintf(w, "\nhotspotd diagnostic report\n")
	fmt.Fprintf(w, "==========================\n")
	fmt.Fprintf(w, "Version:     %s\n", r.Version)
	fmt.Fprintf(w, "Go:          %s\n", r.GoVersion)
	fmt.Fprintf(w, "OS:          %s/%s\n", r.OS, r.Arch)
	fmt.Fprintf(w, "Kernel:      %s\n", r.Kernel)
	fmt.Fprintf(w, "\n")

	for _, c := range r.Checks {
		fmt.Fprintf(w, "[%s] %s\n", c.Status, c.Message)
	}
	fmt.Fprintf(w, "\n")

	if r.DBStats.Accessible {
		fmt.Fprintf(w, "Journal stats:\n")
		fmt.Fprintf(w, "  Path:            %s\n", r.DBStats.Path)
		fmt.Fprintf(w, "  Schema version:  %d\n", r.DBStats.SchemaVersion)
		for table, count := range r.DBStats.Tables {
			fmt.Fprintf(w, "  %-16s %d rows\n", table+":", count)
		}
	}

	return nil
}
