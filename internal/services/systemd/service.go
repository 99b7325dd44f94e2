// Package systemd wraps service-manager operations shared by the
// provisioning steps.
package systemd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nvoss/xui-install/internal/services/shell"
	"github.com/rs/zerolog"
)

// Service defines the interface for init system operations.
type Service interface {
	DaemonReload(ctx context.Context) error
	Enable(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	IsActive(ctx context.Context, name string) bool
	InstallUnit(ctx context.Context, name string, content []byte) error
}

// Impl implements the systemd Service interface.
type Impl struct {
	executor shell.Executor
	logger   zerolog.Logger
	unitDir  string
}

// New creates a new systemd service.
func New(logger zerolog.Logger, executor shell.Executor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
		unitDir:  "/etc/systemd/system",
	}
}

// NewWithUnitDir creates a systemd service writing units to a custom
// directory (for testing).
func NewWithUnitDir(logger zerolog.Logger, executor shell.Executor, unitDir string) *Impl {
	svc := New(logger, executor)
	svc.unitDir = unitDir
	return svc
}

// DaemonReload reloads the unit cache.
func (s *Impl) DaemonReload(ctx context.Context) error {
	if _, err := s.executor.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("daemon-reload failed: %w", err)
	}
	return nil
}

// Enable enables a unit for boot-time start.
func (s *Impl) Enable(ctx context.Context, name string) error {
	if _, err := s.executor.Run(ctx, "systemctl", "enable", name); err != nil {
		return fmt.Errorf("enabling %s: %w", name, err)
	}
	return nil
}

// Start starts a unit.
func (s *Impl) Start(ctx context.Context, name string) error {
	if _, err := s.executor.Run(ctx, "systemctl", "start", name); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}
	return nil
}

// Stop stops a unit.
func (s *Impl) Stop(ctx context.Context, name string) error {
	if _, err := s.executor.Run(ctx, "systemctl", "stop", name); err != nil {
		return fmt.Errorf("stopping %s: %w", name, err)
	}
	return nil
}

// IsActive reports whether a unit is currently active. The probe runs even
// in dry-run mode so convergence decisions match a live run.
func (s *Impl) IsActive(ctx context.Context, name string) bool {
	_, err := s.executor.Probe(ctx, "systemctl", "is-active", "--quiet", name)
	return err == nil
}

// InstallUnit writes a unit file with restrictive permissions. Units are
// root-owned since the installer itself runs as root.
func (s *Impl) InstallUnit(ctx context.Context, name string, content []byte) error {
	path := filepath.Join(s.unitDir, name+".service")
	if err := s.executor.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("installing unit %s: %w", name, err)
	}
	s.logger.Info().Str("path", path).Msg("service unit installed")
	return nil
}
