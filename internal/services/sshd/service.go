// Package sshd guarantees the SSH daemon permits password authentication so
// the provisioned account stays reachable.
package sshd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nvoss/xui-install/internal/services/shell"
	"github.com/rs/zerolog"
)

// Service defines the interface for SSH configuration enforcement.
type Service interface {
	EnsurePasswordAuth(ctx context.Context) error
}

const directive = "PasswordAuthentication"

// Impl implements the sshd Service interface.
type Impl struct {
	executor   shell.Executor
	logger     zerolog.Logger
	configPath string
	dropInDir  string
	dropInName string
	lookPath   func(file string) (string, error)
}

// New creates a new sshd service operating on the standard config locations.
func New(logger zerolog.Logger, executor shell.Executor) *Impl {
	return &Impl{
		executor:   executor,
		logger:     logger,
		configPath: "/etc/ssh/sshd_config",
		dropInDir:  "/etc/ssh/sshd_config.d",
		dropInName: "50-xui-install.conf",
		lookPath:   exec.LookPath,
	}
}

// NewWithPaths creates an sshd service scanning custom locations (for testing).
func NewWithPaths(logger zerolog.Logger, executor shell.Executor, configPath, dropInDir string) *Impl {
	svc := New(logger, executor)
	svc.configPath = configPath
	svc.dropInDir = dropInDir
	return svc
}

// EnsurePasswordAuth scans the primary config and its drop-in directory.
// Files explicitly denying password authentication are rewritten to permit
// it, each backed up first. If nothing in the scanned set affirms permission
// afterwards, an affirming drop-in is created. Any mutation triggers a
// config self-check (fatal on failure) and a best-effort reload cascade.
func (s *Impl) EnsurePasswordAuth(ctx context.Context) error {
	files := s.scanSet()

	affirmed := false
	mutated := false

	for _, file := range files {
		state, err := s.convergeFile(ctx, file)
		if err != nil {
			return err
		}
		affirmed = affirmed || state.affirms
		mutated = mutated || state.changed
	}

	if !affirmed {
		if err := s.writeDropIn(ctx); err != nil {
			return err
		}
		mutated = true
	}

	if !mutated {
		s.logger.Info().Msg("password authentication already permitted")
		return nil
	}

	if err := s.selfCheck(ctx); err != nil {
		return err
	}

	s.reloadDaemon(ctx)
	return nil
}

type fileState struct {
	affirms bool
	changed bool
}

// convergeFile rewrites explicit denials in a single config file. The
// original is preserved with a non-overwriting copy before any edit.
func (s *Impl) convergeFile(ctx context.Context, path string) (fileState, error) {
	var state fileState

	data, err := os.ReadFile(path)
	if err != nil {
		return state, fmt.Errorf("reading %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	denials := 0
	for i, line := range lines {
		value, ok := parseDirective(line)
		if !ok {
			continue
		}
		switch value {
		case "yes":
			state.affirms = true
		case "no":
			lines[i] = directive + " yes"
			denials++
		}
	}

	if denials == 0 {
		return state, nil
	}

	s.logger.Info().Str("file", path).Int("denials", denials).Msg("rewriting password authentication denial")

	if _, err := s.executor.Run(ctx, "cp", "-n", path, path+".bak"); err != nil {
		return state, fmt.Errorf("backing up %s: %w", path, err)
	}

	perm := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	if err := s.executor.WriteFile(path, []byte(strings.Join(lines, "\n")), perm); err != nil {
		return state, fmt.Errorf("rewriting %s: %w", path, err)
	}

	state.affirms = true
	state.changed = true
	return state, nil
}

func (s *Impl) writeDropIn(ctx context.Context) error {
	if _, err := os.Stat(s.dropInDir); err != nil {
		if _, err := s.executor.Run(ctx, "mkdir", "-p", s.dropInDir); err != nil {
			return fmt.Errorf("creating drop-in directory: %w", err)
		}
	}

	path := filepath.Join(s.dropInDir, s.dropInName)
	s.logger.Info().Str("file", path).Msg("no config affirms password authentication, adding drop-in")

	if err := s.executor.WriteFile(path, []byte(directive+" yes\n"), 0o644); err != nil {
		return fmt.Errorf("writing drop-in: %w", err)
	}
	return nil
}

// selfCheck validates the daemon config when the validating tool is
// present. Proceeding with a broken SSH config could lock out recovery, so
// a failed check is fatal.
func (s *Impl) selfCheck(ctx context.Context) error {
	if _, err := s.lookPath("sshd"); err != nil {
		s.logger.Debug().Msg("sshd not in PATH, skipping config check")
		return nil
	}
	if _, err := s.executor.Run(ctx, "sshd", "-t"); err != nil {
		return fmt.Errorf("sshd config check failed: %w", err)
	}
	return nil
}

// reloadDaemon tries reload then restart for both common service names. If
// every attempt fails the condition is only a warning: the on-disk config is
// correct and applies on the next natural restart.
func (s *Impl) reloadDaemon(ctx context.Context) {
	attempts := [][]string{
		{"systemctl", "reload", "ssh"},
		{"systemctl", "restart", "ssh"},
		{"systemctl", "reload", "sshd"},
		{"systemctl", "restart", "sshd"},
	}
	for _, attempt := range attempts {
		if _, err := s.executor.Run(ctx, attempt[0], attempt[1:]...); err == nil {
			s.logger.Info().Str("cmd", strings.Join(attempt, " ")).Msg("ssh daemon reloaded")
			return
		}
	}
	s.logger.Warn().Msg("could not reload ssh daemon, config applies on next restart")
}

// scanSet returns the primary config plus the ordered drop-in fragments.
// Missing files are skipped; a fresh image may not have a drop-in directory.
func (s *Impl) scanSet() []string {
	var files []string
	if _, err := os.Stat(s.configPath); err == nil {
		files = append(files, s.configPath)
	}
	matches, err := filepath.Glob(filepath.Join(s.dropInDir, "*.conf"))
	if err == nil {
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files
}

// parseDirective extracts the PasswordAuthentication value from a single
// config line, ignoring comments and unrelated keywords.
func parseDirective(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	fields := strings.Fields(trimmed)
	if len(fields) < 2 || !strings.EqualFold(fields[0], directive) {
		return "", false
	}
	return strings.ToLower(fields[1]), true
}
