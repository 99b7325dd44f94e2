// Package account converges the administrative Linux user to its desired
// state: present, with the requested password, sudo group membership and a
// passwordless sudoers drop-in.
package account

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvoss/xui-install/internal/services/shell"
	"github.com/rs/zerolog"
)

// Service defines the interface for system account provisioning.
type Service interface {
	Provision(ctx context.Context, username, password string) error
}

// Impl implements the account Service interface.
type Impl struct {
	executor   shell.Executor
	logger     zerolog.Logger
	sudoersDir string
}

// New creates a new account service.
func New(logger zerolog.Logger, executor shell.Executor) *Impl {
	return &Impl{
		executor:   executor,
		logger:     logger,
		sudoersDir: "/etc/sudoers.d",
	}
}

// NewWithSudoersDir creates an account service writing drop-ins to a custom
// directory (for testing).
func NewWithSudoersDir(logger zerolog.Logger, executor shell.Executor, sudoersDir string) *Impl {
	svc := New(logger, executor)
	svc.sudoersDir = sudoersDir
	return svc
}

// Provision creates the account if absent, then converges password, group
// membership and the sudoers drop-in. Re-running with the same username
// always yields the same end state.
func (s *Impl) Provision(ctx context.Context, username, password string) error {
	if s.exists(ctx, username) {
		s.logger.Info().Str("user", username).Msg("account exists, updating")
	} else {
		s.logger.Info().Str("user", username).Msg("creating account")
		if _, err := s.executor.Run(ctx, "useradd", "-m", "-s", "/bin/bash", username); err != nil {
			return fmt.Errorf("creating user %s: %w", username, err)
		}
	}

	if _, err := s.executor.RunInput(ctx, username+":"+password+"\n", "chpasswd"); err != nil {
		return fmt.Errorf("setting password for %s: %w", username, err)
	}

	if _, err := s.executor.Run(ctx, "usermod", "-aG", "sudo", username); err != nil {
		return fmt.Errorf("adding %s to sudo group: %w", username, err)
	}

	return s.writeSudoersDropIn(ctx, username)
}

func (s *Impl) exists(ctx context.Context, username string) bool {
	_, err := s.executor.Probe(ctx, "id", "-u", username)
	return err == nil
}

// writeSudoersDropIn grants passwordless root-equivalent access and runs
// visudo over the drop-in before trusting it. An invalid drop-in must not
// stay in place as a live authorization rule, so it is removed on a failed
// check and the failure is fatal.
func (s *Impl) writeSudoersDropIn(ctx context.Context, username string) error {
	path := filepath.Join(s.sudoersDir, "90-"+username)
	content := fmt.Sprintf("%s ALL=(ALL) NOPASSWD: ALL\n", username)

	if err := s.executor.WriteFile(path, []byte(content), 0o440); err != nil {
		return fmt.Errorf("writing sudoers drop-in: %w", err)
	}

	if _, err := s.executor.Run(ctx, "visudo", "-cf", path); err != nil {
		if !s.executor.DryRun() {
			_ = os.Remove(path)
		}
		return fmt.Errorf("sudoers drop-in failed validation: %w", err)
	}

	s.logger.Info().Str("path", path).Msg("sudoers drop-in installed")
	return nil
}
