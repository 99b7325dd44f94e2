// Package release resolves, downloads and unpacks upstream panel releases.
package release

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/nvoss/xui-install/internal/models"
	"github.com/nvoss/xui-install/internal/services/shell"
	"github.com/rs/zerolog"
)

// Service defines the interface for release operations.
type Service interface {
	LatestVersion(ctx context.Context) (string, error)
	DetectArch(ctx context.Context) (string, error)
	ArchiveURL(version, arch string) string
	Download(ctx context.Context, version, arch, destDir string) (string, error)
	Extract(archivePath, destDir string) error
	FetchFile(ctx context.Context, path string) ([]byte, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	repoOwner = "MHSanaei"
	repoName  = "3x-ui"
)

// Impl implements the release Service interface.
type Impl struct {
	httpClient  HTTPClient
	executor    shell.Executor
	logger      zerolog.Logger
	apiBaseURL  string
	fileBaseURL string
	rawBaseURL  string
}

// New creates a new release service.
func New(logger zerolog.Logger, executor shell.Executor) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		executor:    executor,
		logger:      logger,
		apiBaseURL:  "https://api.github.com",
		fileBaseURL: "https://github.com",
		rawBaseURL:  "https://raw.githubusercontent.com",
	}
}

// NewWithClient creates a release service with a custom HTTP client and base
// URLs (for testing).
func NewWithClient(logger zerolog.Logger, executor shell.Executor, httpClient HTTPClient, baseURL string) *Impl {
	svc := New(logger, executor)
	svc.httpClient = httpClient
	svc.apiBaseURL = baseURL
	svc.fileBaseURL = baseURL
	svc.rawBaseURL = baseURL
	return svc
}

// releaseJSON is the subset of the GitHub release API response we consume.
type releaseJSON struct {
	TagName string `json:"tag_name"`
}

// LatestVersion queries the upstream release API for the latest tag.
func (s *Impl) LatestVersion(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", s.apiBaseURL, repoOwner, repoName)
	s.logger.Debug().Str("url", url).Msg("resolving latest release")

	body, err := s.get(ctx, url)
	if err != nil {
		return "", err
	}

	var release releaseJSON
	if err := json.Unmarshal(body, &release); err != nil {
		return "", fmt.Errorf("%w: parsing release metadata: %v", models.ErrNetwork, err)
	}
	if release.TagName == "" {
		return "", fmt.Errorf("%w: no release tag in upstream metadata", models.ErrNotFound)
	}

	s.logger.Info().Str("version", release.TagName).Msg("resolved latest release")
	return release.TagName, nil
}

// archMap maps kernel-reported machine types to release architectures.
var archMap = map[string]string{
	"x86_64":  "amd64",
	"amd64":   "amd64",
	"x64":     "amd64",
	"i386":    "386",
	"i686":    "386",
	"aarch64": "arm64",
	"arm64":   "arm64",
	"armv7l":  "armv7",
	"armv7":   "armv7",
	"armv6l":  "armv6",
	"armv6":   "armv6",
	"armv5l":  "armv5",
	"armv5":   "armv5",
	"s390x":   "s390x",
}

// DetectArch maps the kernel-reported machine type to a supported release
// architecture.
func (s *Impl) DetectArch(ctx context.Context) (string, error) {
	output, err := s.executor.Probe(ctx, "uname", "-m")
	if err != nil {
		return "", fmt.Errorf("%w: detecting machine type: %v", models.ErrPlatform, err)
	}

	machine := strings.ToLower(strings.TrimSpace(string(output)))
	arch, ok := archMap[machine]
	if !ok {
		return "", fmt.Errorf("%w: unsupported architecture %q", models.ErrPlatform, machine)
	}

	s.logger.Debug().Str("machine", machine).Str("arch", arch).Msg("architecture detected")
	return arch, nil
}

// ArchiveURL returns the download URL for an architecture-specific release
// archive.
func (s *Impl) ArchiveURL(version, arch string) string {
	return fmt.Sprintf("%s/%s/%s/releases/download/%s/x-ui-linux-%s.tar.gz",
		s.fileBaseURL, repoOwner, repoName, version, arch)
}

// Download fetches the release archive into destDir and returns its path.
func (s *Impl) Download(ctx context.Context, version, arch, destDir string) (string, error) {
	url := s.ArchiveURL(version, arch)
	archivePath := filepath.Join(destDir, fmt.Sprintf("x-ui-linux-%s.tar.gz", arch))

	s.logger.Info().Str("url", url).Msg("downloading release archive")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: building download request: %v", models.ErrNetwork, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: downloading %s: %v", models.ErrNetwork, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: downloading %s: status %d", models.ErrNetwork, url, resp.StatusCode)
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", archivePath, err)
	}
	defer func() { _ = out.Close() }()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: writing %s: %v", models.ErrNetwork, archivePath, err)
	}

	s.logger.Info().Int64("bytes", written).Str("path", archivePath).Msg("archive downloaded")
	return archivePath, nil
}

// Extract unpacks a gzip-compressed tar archive into destDir. Entries with
// absolute paths or parent-directory segments are rejected.
func (s *Impl) Extract(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = file.Close() }()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive entry: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, header.FileInfo().Mode().Perm())
			if err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
		default:
			s.logger.Debug().Str("entry", header.Name).Msg("skipping unsupported archive entry type")
		}
	}

	s.logger.Info().Str("dest", destDir).Msg("archive extracted")
	return nil
}

// FetchFile downloads a single file from the upstream raw content host.
func (s *Impl) FetchFile(ctx context.Context, path string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s/%s/%s", s.rawBaseURL, repoOwner, repoName, path)
	return s.get(ctx, url)
}

func (s *Impl) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", models.ErrNetwork, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", models.ErrNetwork, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetching %s: status %d", models.ErrNetwork, url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", models.ErrNetwork, url, err)
	}
	return body, nil
}

func safeJoin(destDir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("archive entry %q has absolute path", name)
	}
	target := filepath.Join(destDir, name)
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes extraction directory", name)
	}
	return target, nil
}
