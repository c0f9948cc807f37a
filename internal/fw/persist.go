package fw

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Default locations of the persisted artifacts.
const (
	DefaultRulesetPath    = "/etc/fieldkit/hotspot.nft"
	DefaultDispatcherPath = "/etc/NetworkManager/dispatcher.d/90-hotspot-nat"
	DefaultSysctlPath     = "/etc/sysctl.d/90-hotspot.conf"
)

// Artifact reports what Save did for one persisted file.
type Artifact struct {
	Path   string
	Result EnsureResult
}

// Persister writes the boot-time artifacts that restore NAT after a reboot:
// an nft ruleset file, a NetworkManager dispatcher hook that loads it when
// the AP interface comes up, and a sysctl drop-in keeping IPv4 forwarding on.
type Persister struct {
	RulesetPath    string
	DispatcherPath string
	SysctlPath     string

	logger *slog.Logger
}

// NewPersister creates a Persister targeting the default paths.
func NewPersister(logger *slog.Logger) (*Persister, error) {
	if logger == nil {
		return nil, fmt.Errorf("new persister: logger is required")
	}
	return &Persister{
		RulesetPath:    DefaultRulesetPath,
		DispatcherPath: DefaultDispatcherPath,
		SysctlPath:     DefaultSysctlPath,
		logger:         logger.With("component", "fw"),
	}, nil
}

// Save writes all three artifacts, skipping any whose on-disk content
// already matches. The dispatcher hook is bound to apIf.
func (p *Persister) Save(rules []Rule, apIf string) ([]Artifact, error) {
	files := []struct {
		path    string
		content string
		mode    os.FileMode
	}{
		{p.RulesetPath, rulesetFile(rules), 0o644},
		{p.DispatcherPath, dispatcherHook(apIf, p.RulesetPath), 0o755},
		{p.SysctlPath, sysctlDropIn(), 0o644},
	}

	artifacts := make([]Artifact, 0, len(files))
	for _, f := range files {
		result, err := writeIfChanged(f.path, []byte(f.content), f.mode)
		if err != nil {
			p.logger.Error("persist_write_failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err),
				"path", f.path,
				"operation", "persist",
			)
			return artifacts, fmt.Errorf("persist %s: %w", f.path, err)
		}
		artifacts = append(artifacts, Artifact{Path: f.path, Result: result})
		p.logger.Info("persist_artifact",
			"path", f.path,
			"result", string(result),
			"operation", "persist",
		)
	}
	return artifacts, nil
}

// Remove deletes the ruleset file and dispatcher hook. The sysctl drop-in is
// left in place: forwarding is never reverted by this tool. Missing files
// are not an error.
func (p *Persister) Remove() error {
	var errs []error
	for _, path := range []string{p.RulesetPath, p.DispatcherPath} {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
			continue
		}
		if err == nil {
			p.logger.Info("persist_artifact_removed",
				"path", path,
				"operation", "unpersist",
			)
		}
	}
	return errors.Join(errs...)
}

// writeIfChanged writes content to path unless the file already holds it.
func writeIfChanged(path string, content []byte, mode os.FileMode) (EnsureResult, error) {
	existing, err := os.ReadFile(path)
	if err == nil && string(existing) == string(content) {
		// Content matches; still make sure the mode is right (the
		// dispatcher hook must stay executable).
		if info, err := os.Stat(path); err == nil && info.Mode().Perm() != mode {
			if err := os.Chmod(path, mode); err != nil {
				return "", err
			}
			return ResultApplied, nil
		}
		return ResultSatisfied, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, content, mode); err != nil {
		return "", err
	}
	// WriteFile honors umask on create; force the intended mode.
	if err := os.Chmod(path, mode); err != nil {
		return "", err
	}
	return ResultApplied, nil
}

// rulesetFile renders the nft file. The declare + delete prologue makes
// reloading idempotent: declaring first guarantees the delete cannot fail,
// and the delete clears any rules from a previous load.
func rulesetFile(rules []Rule) string {
	return "#!/usr/sbin/nft -f\n" +
		"# Managed by hotspotd. Restores hotspot NAT on boot.\n\n" +
		"table ip hotspot\n" +
		"delete table ip hotspot\n\n" +
		FormatRuleset(rules) + "\n"
}

// dispatcherHook renders the NetworkManager dispatcher script that reloads
// the ruleset whenever the AP interface comes up.
func dispatcherHook(apIf, rulesetPath string) string {
	return "#!/bin/sh\n" +
		"# Managed by hotspotd.\n\n" +
		"if [ \"$1\" = \"" + apIf + "\" ] && [ \"$2\" = \"up\" ]; then\n" +
		"    /usr/sbin/nft -f " + rulesetPath + "\n" +
		"fi\n"
}

// sysctlDropIn renders the sysctl fragment that keeps forwarding enabled
// across reboots.
func sysctlDropIn() string {
	return "# Managed by hotspotd.\nnet.ipv4.ip_forward = 1\n"
}
