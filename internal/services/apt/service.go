// Package apt installs the OS packages the provisioning run depends on.
package apt

import (
	"context"
	"fmt"

	"github.com/nvoss/xui-install/internal/services/shell"
	"github.com/rs/zerolog"
)

// Service defines the interface for package installation.
type Service interface {
	EnsurePackages(ctx context.Context) error
}

// requiredPackages is the fixed set the installer needs: archive and
// transfer tools, the certificate store, sudo and a few auxiliary CLIs.
var requiredPackages = []string{
	"curl",
	"wget",
	"tar",
	"ca-certificates",
	"sudo",
	"tzdata",
	"cron",
}

// Impl implements the apt Service interface.
type Impl struct {
	executor shell.Executor
	logger   zerolog.Logger
}

// New creates a new apt service.
func New(logger zerolog.Logger, executor shell.Executor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// EnsurePackages refreshes the package index and installs the required set.
// apt-get no-ops for packages that are already satisfied, so the step is
// idempotent. Failure is fatal: a broken apt source should surface
// immediately rather than be masked by retries.
func (s *Impl) EnsurePackages(ctx context.Context) error {
	s.logger.Info().Strs("packages", requiredPackages).Msg("installing dependencies")

	if _, err := s.executor.Run(ctx, "apt-get", "update", "-q"); err != nil {
		return fmt.Errorf("package index refresh failed: %w", err)
	}

	args := append([]string{"install", "-y", "-q"}, requiredPackages...)
	if _, err := s.executor.Run(ctx, "apt-get", args...); err != nil {
		return fmt.Errorf("dependency install failed: %w", err)
	}

	s.logger.Info().Msg("dependencies installed")
	return nil
}
