// Package panel installs and configures the 3x-ui web panel through its own
// CLI, which is the unavoidable integration boundary: the panel owns its
// settings store and this tool never touches it directly.
package panel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvoss/xui-install/internal/models"
	"github.com/nvoss/xui-install/internal/services/shell"
	"github.com/nvoss/xui-install/internal/services/systemd"
	"github.com/rs/zerolog"
)

// Service defines the interface for panel operations.
type Service interface {
	Healthy(ctx context.Context) bool
	Install(ctx context.Context, payloadDir, arch string) error
	RegisterService(ctx context.Context, payloadDir string) error
	Configure(ctx context.Context, req models.InstallRequest) error
	Start(ctx context.Context) error
	Status(ctx context.Context) (*models.PanelStatus, error)
}

// Fetcher retrieves single files from the upstream raw content host.
type Fetcher interface {
	FetchFile(ctx context.Context, path string) ([]byte, error)
}

// ServiceName is the systemd unit managing the panel.
const ServiceName = "x-ui"

// unitCandidates is the payload unit selection order: generic first, then
// OS-family-specific variants.
var unitCandidates = []string{
	"x-ui.service",
	"x-ui.service.debian",
	"x-ui.service.ubuntu",
}

// Impl implements the panel Service interface.
type Impl struct {
	executor   shell.Executor
	systemdSvc systemd.Service
	fetcher    Fetcher
	logger     zerolog.Logger
	installDir string
	binaryPath string
	helperPath string
}

// New creates a new panel service.
func New(logger zerolog.Logger, executor shell.Executor, systemdSvc systemd.Service, fetcher Fetcher) *Impl {
	return &Impl{
		executor:   executor,
		systemdSvc: systemdSvc,
		fetcher:    fetcher,
		logger:     logger,
		installDir: "/usr/local/x-ui",
		binaryPath: "/usr/local/x-ui/x-ui",
		helperPath: "/usr/bin/x-ui",
	}
}

// NewWithPaths creates a panel service using custom filesystem locations
// (for testing).
func NewWithPaths(logger zerolog.Logger, executor shell.Executor, systemdSvc systemd.Service,
	fetcher Fetcher, installDir, helperPath string,
) *Impl {
	svc := New(logger, executor, systemdSvc, fetcher)
	svc.installDir = installDir
	svc.binaryPath = filepath.Join(installDir, "x-ui")
	svc.helperPath = helperPath
	return svc
}

// Healthy reports whether the panel is already working: executable present
// and executable, managed service active, and its own status subcommand
// succeeding.
func (s *Impl) Healthy(ctx context.Context) bool {
	info, err := os.Stat(s.binaryPath)
	if err != nil || info.Mode()&0o111 == 0 {
		s.logger.Debug().Str("binary", s.binaryPath).Msg("panel binary missing or not executable")
		return false
	}
	if !s.systemdSvc.IsActive(ctx, ServiceName) {
		s.logger.Debug().Msg("panel service not active")
		return false
	}
	if _, err := s.executor.Probe(ctx, s.binaryPath, "status"); err != nil {
		s.logger.Debug().Err(err).Msg("panel status probe failed")
		return false
	}
	return true
}

// Install replaces the installation directory wholesale from the unpacked
// payload and installs the auxiliary CLI entry point on the system path.
func (s *Impl) Install(ctx context.Context, payloadDir, arch string) error {
	// Stop before replacing files; absence of the service is not an error.
	if s.systemdSvc.IsActive(ctx, ServiceName) {
		if err := s.systemdSvc.Stop(ctx, ServiceName); err != nil {
			s.logger.Debug().Err(err).Msg("stop before install failed, continuing")
		}
	}

	if _, err := s.executor.Run(ctx, "rm", "-rf", s.installDir); err != nil {
		return fmt.Errorf("removing previous install: %w", err)
	}
	if _, err := s.executor.Run(ctx, "cp", "-a", payloadDir, filepath.Dir(s.installDir)+"/"); err != nil {
		return fmt.Errorf("installing payload: %w", err)
	}

	if _, err := s.executor.Run(ctx, "chmod", "+x", s.binaryPath, filepath.Join(s.installDir, "x-ui.sh")); err != nil {
		return fmt.Errorf("marking executables: %w", err)
	}

	// The arm family ships versioned core binaries but the panel expects
	// the family-generic name.
	switch arch {
	case "armv5", "armv6", "armv7":
		versioned := filepath.Join(s.installDir, "bin", "xray-linux-"+arch)
		generic := filepath.Join(s.installDir, "bin", "xray-linux-arm")
		if _, err := s.executor.Run(ctx, "mv", versioned, generic); err != nil {
			return fmt.Errorf("renaming core binary: %w", err)
		}
		if _, err := s.executor.Run(ctx, "chmod", "+x", generic); err != nil {
			return fmt.Errorf("marking core binary executable: %w", err)
		}
	}

	return s.installHelper(ctx)
}

func (s *Impl) installHelper(ctx context.Context) error {
	var script []byte
	if !s.executor.DryRun() {
		var err error
		script, err = s.fetcher.FetchFile(ctx, "main/x-ui.sh")
		if err != nil {
			return fmt.Errorf("fetching helper script: %w", err)
		}
	}
	if err := s.executor.WriteFile(s.helperPath, script, 0o755); err != nil {
		return fmt.Errorf("installing helper script: %w", err)
	}
	s.logger.Info().Str("path", s.helperPath).Msg("helper script installed")
	return nil
}

// RegisterService installs the panel's service unit, preferring definitions
// shipped in the payload and falling back to the upstream default, then
// reloads the unit cache and enables boot-time start.
func (s *Impl) RegisterService(ctx context.Context, payloadDir string) error {
	content, source, err := s.unitContent(ctx, payloadDir)
	if err != nil {
		return err
	}
	s.logger.Info().Str("source", source).Msg("registering panel service")

	if err := s.systemdSvc.InstallUnit(ctx, ServiceName, content); err != nil {
		return err
	}
	if err := s.systemdSvc.DaemonReload(ctx); err != nil {
		return err
	}
	return s.systemdSvc.Enable(ctx, ServiceName)
}

func (s *Impl) unitContent(ctx context.Context, payloadDir string) ([]byte, string, error) {
	// No payload exists in dry-run mode; the unit install is rendered with
	// empty content.
	if s.executor.DryRun() {
		return nil, "dry-run", nil
	}
	for _, candidate := range unitCandidates {
		path := filepath.Join(payloadDir, candidate)
		content, err := os.ReadFile(path)
		if err == nil {
			return content, candidate, nil
		}
	}
	content, err := s.fetcher.FetchFile(ctx, "main/x-ui.service")
	if err != nil {
		return nil, "", fmt.Errorf("fetching default service unit: %w", err)
	}
	return content, "upstream default", nil
}

// Configure brings the panel account and settings to a known state in one
// call, keeps SSL disabled by resetting certificate settings, and migrates
// the on-disk schema.
func (s *Impl) Configure(ctx context.Context, req models.InstallRequest) error {
	s.logger.Info().
		Str("username", req.PanelUsername).
		Int("port", req.PanelPort).
		Str("path", req.PanelPath).
		Msg("configuring panel")

	if _, err := s.executor.Run(ctx, s.binaryPath, "setting",
		"-username", req.PanelUsername,
		"-password", req.PanelPassword,
		"-port", strconv.Itoa(req.PanelPort),
		"-webBasePath", req.PanelPath,
		"-resetTwoFactor", "true",
	); err != nil {
		return fmt.Errorf("applying panel settings: %w", err)
	}

	if _, err := s.executor.Run(ctx, s.binaryPath, "cert", "-reset"); err != nil {
		return fmt.Errorf("resetting panel certificate: %w", err)
	}

	if _, err := s.executor.Run(ctx, s.binaryPath, "migrate"); err != nil {
		return fmt.Errorf("migrating panel database: %w", err)
	}

	return nil
}

// Start starts the managed service and, on live runs, fails if it does not
// report active immediately afterwards.
func (s *Impl) Start(ctx context.Context) error {
	if err := s.systemdSvc.Start(ctx, ServiceName); err != nil {
		return err
	}
	if !s.executor.DryRun() && !s.systemdSvc.IsActive(ctx, ServiceName) {
		return fmt.Errorf("%w: %s service did not become active after start", models.ErrExecution, ServiceName)
	}
	s.logger.Info().Msg("panel service started")
	return nil
}

// Status queries the panel's own settings output for the effective port and
// base path.
func (s *Impl) Status(ctx context.Context) (*models.PanelStatus, error) {
	output, err := s.executor.Probe(ctx, s.binaryPath, "setting", "-show", "true")
	if err != nil {
		return nil, fmt.Errorf("querying panel settings: %w", err)
	}
	return ParseStatus(string(output)), nil
}

// ParseStatus extracts port and base path from line-oriented "key: value"
// output. Unknown lines are ignored; missing keys leave the Found flags
// unset rather than guessing.
func ParseStatus(output string) *models.PanelStatus {
	status := &models.PanelStatus{}
	for _, line := range strings.Split(output, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch {
		case strings.EqualFold(key, "port"):
			if port, err := strconv.Atoi(value); err == nil {
				status.Port = port
				status.PortFound = true
			}
		case strings.EqualFold(key, "webBasePath"):
			if value != "" {
				status.BasePath = value
				status.BasePathFound = true
			}
		}
	}
	return status
}
