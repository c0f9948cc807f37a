package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fieldkit/hotspotd/internal/config"
	"github.com/fieldkit/hotspotd/internal/diag"
	apperr "github.com/fieldkit/hotspotd/internal/errors"
	"github.com/fieldkit/hotspotd/internal/fw"
	"github.com/fieldkit/hotspotd/internal/hotspot"
	"github.com/fieldkit/hotspotd/internal/journal"
	"github.com/fieldkit/hotspotd/internal/logging"
	"github.com/fieldkit/hotspotd/internal/netdev"
	"github.com/fieldkit/hotspotd/internal/nm"
	"github.com/fieldkit/hotspotd/internal/qr"
	"github.com/fieldkit/hotspotd/internal/svc"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		// Absent optional hardware is a soft skip: boot units must not flap
		// just because the USB adapter is unplugged.
		if apperr.IsAbsence(err) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "hotspotd:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hotspotd",
		Short:         "Field kit WiFi hotspot reconciler",
		Long:          "hotspotd turns a Jetson field kit into a WiFi hotspot: it picks an AP-capable adapter, drives NetworkManager, and wires NAT so hotspot clients reach the internet over the kit's uplink.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to config file (default: /etc/fieldkit/hotspotd.yaml)")
	root.PersistentFlags().String("data-dir", "", "path to data directory (default: /var/lib/fieldkit)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "json", "log format (json, text)")

	root.AddCommand(
		newStartCmd(),
		newStopCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newQRCmd(),
		newJournalCmd(),
		newDiagnoseCmd(),
		newVersionCmd(),
	)

	return root
}

// addHotspotFlags defines the reconcile parameter flags shared by start and
// watch. Names match the koanf keys so layering works without glue; the one
// exception (--ap-interface vs ap_interface) is bridged in loadConfig.
func addHotspotFlags(cmd *cobra.Command) {
	cmd.Flags().String("ssid", "JetsonFieldKit", "hotspot network name")
	cmd.Flags().String("password", "fieldkit123", "hotspot WPA passphrase")
	cmd.Flags().Int("channel", 1, "2.4 GHz WiFi channel")
	cmd.Flags().String("ap-interface", "", "force a specific adapter for the hotspot")
	cmd.Flags().Bool("persist", false, "write boot-time artifacts (nft ruleset, dispatcher hook, sysctl)")
}

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Bring the hotspot up (idempotent)",
		RunE:  runStart,
	}
	addHotspotFlags(cmd)
	return cmd
}

func runStart(cmd *cobra.Command, args []string) error {
	if err := requireRoot(); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	logStartup(logger, cfg, "start")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, cleanup, err := buildReconciler(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := rec.Start(ctx, startParams(cfg))
	if err != nil {
		return err
	}

	if report.Outcome == journal.OutcomeSatisfied {
		fmt.Printf("hotspot %q already up on %s\n", report.SSID, report.APIface)
	} else {
		fmt.Printf("hotspot %q up on %s\n", report.SSID, report.APIface)
	}
	if report.STAIface == "" {
		fmt.Println("local-only: no upstream WiFi connection")
	} else {
		fmt.Printf("clients on %s reach the internet via %s\n", report.Subnet, report.STAIface)
	}
	return nil
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Tear the hotspot down (idempotent)",
		RunE:  runStop,
	}
}

func runStop(cmd *cobra.Command, args []string) error {
	if err := requireRoot(); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	logStartup(logger, cfg, "stop")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, cleanup, err := buildReconciler(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := rec.Stop(ctx)
	if err != nil {
		return err
	}

	if report.Outcome == journal.OutcomeSatisfied {
		fmt.Println("nothing to tear down")
	} else {
		fmt.Println("hotspot torn down")
	}
	return nil
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report adapters, hotspot, and forwarding state",
		RunE:  runStatus,
	}
	cmd.Flags().Bool("json", false, "machine-readable output")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, cleanup, err := buildReconciler(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := rec.Report(ctx, cfg.Probes)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	fmt.Print(snap.Text())
	return nil
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reconcile continuously until stopped",
		RunE:  runWatch,
	}
	addHotspotFlags(cmd)
	cmd.Flags().String("interval", "", "reconcile interval (default 30s)")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := requireRoot(); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	logStartup(logger, cfg, "watch")

	interval, err := time.ParseDuration(cfg.Watch.Interval)
	if err != nil {
		return fmt.Errorf("parse watch interval %q: %w", cfg.Watch.Interval, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, cleanup, err := buildReconciler(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer cleanup()

	watcher, err := hotspot.NewWatcher(rec, startParams(cfg), interval, logger)
	if err != nil {
		return err
	}
	watcher.Run(ctx)
	return nil
}

func newQRCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Print the WiFi join QR code",
		RunE:  runQR,
	}
	cmd.Flags().String("ssid", "JetsonFieldKit", "hotspot network name")
	cmd.Flags().String("password", "fieldkit123", "hotspot WPA passphrase")
	cmd.Flags().String("output", "", "write a PNG to this path instead of printing")
	cmd.Flags().Int("size", 256, "PNG size in pixels")
	return cmd
}

func runQR(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if output != "" {
		size, _ := cmd.Flags().GetInt("size")
		png, err := qr.PNG(cfg.SSID, cfg.Password, size)
		if err != nil {
			return err
		}
		if err := os.WriteFile(output, png, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", output, err)
		}
		fmt.Printf("wrote %s\n", output)
		return nil
	}

	code, err := qr.Terminal(cfg.SSID, cfg.Password)
	if err != nil {
		return err
	}
	fmt.Print(code)
	fmt.Printf("ssid: %s\n", cfg.SSID)
	return nil
}

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recent reconcile runs",
		RunE:  runJournal,
	}
	cmd.Flags().Int("limit", 20, "number of runs to show")
	cmd.Flags().Bool("json", false, "machine-readable output")
	return cmd
}

// runView is the CLI output shape for one journal row.
type runView struct {
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	SSID       string    `json:"ssid,omitempty"`
	APIface    string    `json:"ap_interface,omitempty"`
	STAIface   string    `json:"sta_interface,omitempty"`
	Subnet     string    `json:"subnet,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

func runJournal(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	db, err := journal.New(ctx, cfg.Journal.Path, logger, false)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer db.Close()
	if err := journal.Migrate(ctx, db, logger); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		views := make([]runView, 0, len(runs))
		for _, r := range runs {
			views = append(views, runView{
				Timestamp:  r.Timestamp,
				RunID:      r.RunID,
				Action:     r.Action,
				Outcome:    r.Outcome,
				SSID:       r.SSID,
				APIface:    r.APIface,
				STAIface:   r.STAIface,
				Subnet:     r.Subnet,
				DurationMS: r.Duration.Milliseconds(),
				Error:      r.Error,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tOUTCOME\tAP\tUPLINK\tSUBNET\tDURATION\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.Action, r.Outcome, r.APIface, r.STAIface, r.Subnet,
			r.Duration.Round(time.Millisecond), r.Error)
	}
	return tw.Flush()
}

func newDiagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run environment checks",
		RunE:  runDiagnose,
	}
	cmd.Flags().Bool("json", false, "machine-readable output")
	return cmd
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")
	return diag.Run(diag.Config{
		Version:    version,
		DataDir:    filepath.Dir(cfg.Journal.Path),
		DBPath:     cfg.Journal.Path,
		JSONOutput: asJSON,
		Writer:     os.Stdout,
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hotspotd %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}

// loadConfig loads the layered configuration and applies the flag overrides
// whose names do not map one-to-one onto koanf keys.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			configPath = config.DefaultPath
		}
	}
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if f := cmd.Flags().Lookup("ap-interface"); f != nil && f.Changed {
		cfg.APInterface, _ = cmd.Flags().GetString("ap-interface")
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}
	if f := cmd.Flags().Lookup("log-format"); f != nil && f.Changed {
		cfg.Logging.Format, _ = cmd.Flags().GetString("log-format")
	}
	if f := cmd.Flags().Lookup("data-dir"); f != nil && f.Changed {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		cfg.Journal.Path = filepath.Join(dataDir, "hotspotd.db")
	}
	if f := cmd.Flags().Lookup("interval"); f != nil && f.Changed {
		cfg.Watch.Interval, _ = cmd.Flags().GetString("interval")
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.Config{
		Level:   parseLogLevel(cfg.Logging.Level),
		DevMode: strings.EqualFold(cfg.Logging.Format, "text"),
	})
}

func logStartup(logger *slog.Logger, cfg *config.Config, action string) {
	logger.Info("hotspotd_starting",
		"version", version,
		"go_version", runtime.Version(),
		"os", runtime.GOOS,
		"arch", runtime.GOARCH,
		"pid", os.Getpid(),
		"uid", os.Getuid(),
		"action", action,
		"ssid", cfg.SSID,
		"channel", cfg.Channel,
		"ap_interface", cfg.APInterface,
		"persist", cfg.Persist,
		"component", "main",
	)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// requireRoot guards the mutating subcommands. Reporting commands work
// unprivileged.
func requireRoot() error {
	if os.Geteuid() != 0 {
		return apperr.Preconditionf(apperr.ErrNotPrivileged,
			"this command mutates network state and must run as root (euid %d)", os.Geteuid())
	}
	return nil
}

func startParams(cfg *config.Config) hotspot.StartParams {
	return hotspot.StartParams{
		SSID:        cfg.SSID,
		Password:    cfg.Password,
		Channel:     cfg.Channel,
		APInterface: cfg.APInterface,
		Persist:     cfg.Persist,
	}
}

// buildReconciler wires the live collaborators. The journal is best-effort
// for reconcile commands: a kit with a broken data partition still gets its
// hotspot, just no history.
func buildReconciler(ctx context.Context, cfg *config.Config, logger *slog.Logger, withJournal bool) (*hotspot.Reconciler, func(), error) {
	nmc, err := nm.NewClient(logger)
	if err != nil {
		return nil, nil, err
	}
	fwm, err := fw.NewManager(fw.NewApplier(), logger, parseLogLevel(cfg.Logging.Level) == slog.LevelDebug)
	if err != nil {
		return nil, nil, err
	}
	persist, err := fw.NewPersister(logger)
	if err != nil {
		return nil, nil, err
	}
	sys, err := svc.NewController(logger)
	if err != nil {
		return nil, nil, err
	}

	var recorder hotspot.RunRecorder
	cleanup := func() {}
	if withJournal {
		if db := openJournal(ctx, cfg, logger); db != nil {
			recorder = db
			cleanup = func() { db.Close() }
		}
	}

	rec, err := hotspot.New(netdev.NewEnumerator(), nmc, fwm, persist, sys, recorder, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return rec, cleanup, nil
}

// openJournal opens and migrates the run journal, compacting old rows per
// the retention setting. Any failure downgrades to a warning.
func openJournal(ctx context.Context, cfg *config.Config, logger *slog.Logger) *journal.DB {
	if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o750); err != nil {
		logger.Warn("journal_unavailable",
			"error", err,
			"path", cfg.Journal.Path,
			"component", "main",
		)
		return nil
	}
	db, err := journal.New(ctx, cfg.Journal.Path, logger, false)
	if err != nil {
		logger.Warn("journal_unavailable",
			"error", err,
			"path", cfg.Journal.Path,
			"component", "main",
		)
		return nil
	}
	if err := journal.Migrate(ctx, db, logger); err != nil {
		logger.Warn("journal_unavailable",
			"error", err,
			"path", cfg.Journal.Path,
			"component", "main",
		)
		db.Close()
		return nil
	}

	retention, err := time.ParseDuration(cfg.Journal.Retention)
	if err != nil {
		logger.Warn("journal_retention_invalid",
			"retention", cfg.Journal.Retention,
			"error", err,
			"component", "main",
		)
		return db
	}
	if deleted, err := db.CompactRuns(ctx, time.Now().Add(-retention)); err != nil {
		logger.Warn("journal_compact_failed",
			"error", err,
			"component", "main",
		)
	} else if deleted > 0 {
		logger.Info("journal_compacted",
			"deleted", deleted,
			"retention", cfg.Journal.Retention,
			"component", "main",
		)
	}
	return db
}
