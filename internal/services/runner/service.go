// Package runner orchestrates the provisioning workflow.
package runner

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nvoss/xui-install/internal/models"
	"github.com/nvoss/xui-install/internal/services/account"
	"github.com/nvoss/xui-install/internal/services/apt"
	"github.com/nvoss/xui-install/internal/services/panel"
	"github.com/nvoss/xui-install/internal/services/release"
	"github.com/nvoss/xui-install/internal/services/shell"
	"github.com/nvoss/xui-install/internal/services/sshd"
	"github.com/nvoss/xui-install/internal/services/systemd"
	"github.com/rs/zerolog"
)

// Service defines the interface for the provisioning runner.
type Service interface {
	Run(ctx context.Context, req models.InstallRequest) (*models.RunResult, error)
}

// payloadRoot is the directory the release archive must contain.
const payloadRoot = "x-ui"

// Impl implements the runner Service interface.
type Impl struct {
	aptSvc     apt.Service
	accountSvc account.Service
	sshdSvc    sshd.Service
	releaseSvc release.Service
	panelSvc   panel.Service
	executor   shell.Executor
	logger     zerolog.Logger
	lookPath   func(file string) (string, error)
	geteuid    func() int
}

// New creates a new runner service.
func New(logger zerolog.Logger, executor shell.Executor) *Impl {
	releaseSvc := release.New(logger, executor)
	systemdSvc := systemd.New(logger, executor)
	return &Impl{
		aptSvc:     apt.New(logger, executor),
		accountSvc: account.New(logger, executor),
		sshdSvc:    sshd.New(logger, executor),
		releaseSvc: releaseSvc,
		panelSvc:   panel.New(logger, executor, systemdSvc, releaseSvc),
		executor:   executor,
		logger:     logger,
		lookPath:   exec.LookPath,
		geteuid:    os.Geteuid,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	executor shell.Executor,
	aptSvc apt.Service,
	accountSvc account.Service,
	sshdSvc sshd.Service,
	releaseSvc release.Service,
	panelSvc panel.Service,
	lookPath func(file string) (string, error),
	geteuid func() int,
) *Impl {
	return &Impl{
		aptSvc:     aptSvc,
		accountSvc: accountSvc,
		sshdSvc:    sshdSvc,
		releaseSvc: releaseSvc,
		panelSvc:   panelSvc,
		executor:   executor,
		logger:     logger,
		lookPath:   lookPath,
		geteuid:    geteuid,
	}
}

// Run executes the provisioning sequence, stopping at the first failure. No
// partial rollback is attempted: a provisioning run left half-applied is
// more dangerous than one that stops early with a clear message.
func (s *Impl) Run(ctx context.Context, req models.InstallRequest) (*models.RunResult, error) {
	startTime := time.Now()

	if err := s.preflight(req); err != nil {
		return nil, err
	}

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"dependencies", s.aptSvc.EnsurePackages},
		{"system account", func(ctx context.Context) error {
			return s.accountSvc.Provision(ctx, req.SystemUsername, req.SystemPassword)
		}},
		{"ssh config", s.sshdSvc.EnsurePasswordAuth},
	}
	for _, step := range steps {
		s.logger.Info().Str("step", step.name).Msg("running step")
		if err := step.fn(ctx); err != nil {
			return nil, fmt.Errorf("step %s: %w", step.name, err)
		}
	}

	// Re-running against an already-working install is a safe no-op unless
	// forced.
	if !req.Force && s.panelSvc.Healthy(ctx) {
		s.logger.Info().Msg("panel already installed and healthy, nothing to do (use --force to reinstall)")
		return &models.RunResult{Skipped: true}, nil
	}

	version := req.Version
	if version == "" {
		var err error
		version, err = s.releaseSvc.LatestVersion(ctx)
		if err != nil {
			return nil, fmt.Errorf("step version resolution: %w", err)
		}
	}

	arch, err := s.releaseSvc.DetectArch(ctx)
	if err != nil {
		return nil, fmt.Errorf("step architecture detection: %w", err)
	}

	payloadDir, cleanup, err := s.fetchPayload(ctx, version, arch)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	s.logger.Info().Str("step", "install").Msg("running step")
	if err := s.panelSvc.Install(ctx, payloadDir, arch); err != nil {
		return nil, fmt.Errorf("step install: %w", err)
	}

	s.logger.Info().Str("step", "service registration").Msg("running step")
	if err := s.panelSvc.RegisterService(ctx, payloadDir); err != nil {
		return nil, fmt.Errorf("step service registration: %w", err)
	}

	s.logger.Info().Str("step", "panel configuration").Msg("running step")
	if err := s.panelSvc.Configure(ctx, req); err != nil {
		return nil, fmt.Errorf("step panel configuration: %w", err)
	}

	s.logger.Info().Str("step", "start").Msg("running step")
	if err := s.panelSvc.Start(ctx); err != nil {
		return nil, fmt.Errorf("step start: %w", err)
	}

	s.logger.Info().
		Str("version", version).
		Dur("duration", time.Since(startTime)).
		Msg("provisioning completed")

	return s.summarize(ctx, req), nil
}

// preflight rejects runs that cannot work before anything is mutated. Root
// is only required for live runs so a dry run can be previewed by anyone.
func (s *Impl) preflight(req models.InstallRequest) error {
	if !req.DryRun && s.geteuid() != 0 {
		return fmt.Errorf("%w: must run as root", models.ErrPrivilege)
	}
	if _, err := s.lookPath("apt-get"); err != nil {
		return fmt.Errorf("%w: apt-get not found, a Debian or Ubuntu host is required", models.ErrPlatform)
	}
	return nil
}

// fetchPayload downloads and unpacks the release archive into a scoped
// temporary directory. The directory is removed on every exit path via the
// returned cleanup. Dry runs skip both download and extraction and only
// render the would-be fetch.
func (s *Impl) fetchPayload(ctx context.Context, version, arch string) (string, func(), error) {
	if s.executor.DryRun() {
		s.logger.Info().
			Str("url", s.releaseSvc.ArchiveURL(version, arch)).
			Msg("dry-run: would download and extract release archive")
		return filepath.Join(os.TempDir(), "xui-install", payloadRoot), func() {}, nil
	}

	tempDir, err := os.MkdirTemp("", "xui-install-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("creating temporary directory: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(tempDir) }

	archivePath, err := s.releaseSvc.Download(ctx, version, arch, tempDir)
	if err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("step download: %w", err)
	}

	if err := s.releaseSvc.Extract(archivePath, tempDir); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("step extraction: %w", err)
	}

	payloadDir := filepath.Join(tempDir, payloadRoot)
	if info, err := os.Stat(payloadDir); err != nil || !info.IsDir() {
		cleanup()
		return "", func() {}, fmt.Errorf("archive did not contain the expected %s directory", payloadRoot)
	}

	return payloadDir, cleanup, nil
}

// summarize prints the final report. Credentials are deliberately plaintext:
// this is the one place the operator learns what was provisioned.
func (s *Impl) summarize(ctx context.Context, req models.InstallRequest) *models.RunResult {
	if req.DryRun {
		fmt.Println("Dry run complete. No changes were made.")
		return &models.RunResult{}
	}

	portStr := "<port>"
	pathStr := "<path>"
	result := &models.RunResult{}
	if status, err := s.panelSvc.Status(ctx); err == nil {
		if status.PortFound {
			portStr = strconv.Itoa(status.Port)
			result.Port = status.Port
		}
		if status.BasePathFound {
			pathStr = status.BasePath
			result.Path = status.BasePath
		}
	} else {
		s.logger.Warn().Err(err).Msg("could not read panel settings for summary")
	}

	address := hostAddress()
	result.Address = address

	urlPath := strings.Trim(pathStr, "/")
	if urlPath != "" {
		urlPath += "/"
	}

	fmt.Println()
	fmt.Println("Installation complete!")
	fmt.Println()
	fmt.Println("Panel access:")
	fmt.Printf("  URL:      http://%s:%s/%s\n", address, portStr, urlPath)
	fmt.Printf("  Username: %s\n", req.PanelUsername)
	fmt.Printf("  Password: %s\n", req.PanelPassword)
	fmt.Println()
	fmt.Println("System account:")
	fmt.Printf("  Username: %s\n", req.SystemUsername)
	fmt.Printf("  Password: %s\n", req.SystemPassword)
	fmt.Println()

	return result
}

// hostAddress determines a reachable address for the summary URL via the
// kernel's route selection; no packet is sent.
func hostAddress() string {
	conn, err := net.Dial("udp", "8.8.8.8:53")
	if err != nil {
		return "<server-ip>"
	}
	defer func() { _ = conn.Close() }()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "<server-ip>"
}
