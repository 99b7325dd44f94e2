package config

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/nvoss/xui-install/internal/models"
)

// Options holds the raw command line input before resolution. Port is kept
// as a string so a non-numeric value surfaces as a configuration error
// instead of a flag parse failure.
type Options struct {
	Username       string // shared fallback for both accounts
	Password       string
	PanelUsername  string
	PanelPassword  string
	ServerUsername string
	ServerPassword string
	Path           string
	Port           string
	Version        string
	Force          bool
	DryRun         bool
	Generate       bool // fill missing credentials with random values
}

// systemUsernameRe matches valid Linux account names: lowercase letter or
// underscore start, then up to 31 lowercase letters, digits, underscores or
// hyphens.
var systemUsernameRe = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

// panelPathRe restricts base paths to letters, digits, dot, underscore,
// hyphen and the separator.
var panelPathRe = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

// Resolve merges shared and per-target credentials, validates every field
// and returns an immutable install request. Explicit per-target values take
// precedence over the shared fallback.
func Resolve(opts Options) (*models.InstallRequest, error) {
	req := &models.InstallRequest{
		PanelUsername:  coalesce(opts.PanelUsername, opts.Username),
		PanelPassword:  coalesce(opts.PanelPassword, opts.Password),
		SystemUsername: coalesce(opts.ServerUsername, opts.Username),
		SystemPassword: coalesce(opts.ServerPassword, opts.Password),
		Version:        opts.Version,
		Force:          opts.Force,
		DryRun:         opts.DryRun,
	}

	if opts.Generate {
		fillGenerated(req)
	}

	missing := []struct {
		value string
		flags string
	}{
		{req.PanelUsername, "--panel-username or --username"},
		{req.PanelPassword, "--panel-password or --password"},
		{req.SystemUsername, "--server-username or --username"},
		{req.SystemPassword, "--server-password or --password"},
	}
	for _, m := range missing {
		if m.value == "" {
			return nil, fmt.Errorf("%w: missing credential, set %s", models.ErrConfiguration, m.flags)
		}
	}

	if err := ValidateSystemUsername(req.SystemUsername); err != nil {
		return nil, err
	}

	port, err := ValidatePort(opts.Port)
	if err != nil {
		return nil, err
	}
	req.PanelPort = port

	path, err := NormalizePath(opts.Path)
	if err != nil {
		return nil, err
	}
	req.PanelPath = path

	return req, nil
}

// ValidateSystemUsername checks the target Linux account name. The panel
// username is deliberately unrestricted; only the OS account must satisfy
// useradd's naming rules, and root is never a valid target.
func ValidateSystemUsername(name string) error {
	if name == "root" {
		return fmt.Errorf("%w: system username must not be root", models.ErrConfiguration)
	}
	if !systemUsernameRe.MatchString(name) {
		return fmt.Errorf("%w: invalid system username %q: must start with a lowercase letter or underscore, "+
			"followed by up to 31 lowercase letters, digits, underscores or hyphens", models.ErrConfiguration, name)
	}
	return nil
}

// ValidatePort parses and range-checks a panel port.
func ValidatePort(raw string) (int, error) {
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid port %q: not a number", models.ErrConfiguration, raw)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: invalid port %d: must be between 1 and 65535", models.ErrConfiguration, port)
	}
	return port, nil
}

// NormalizePath strips leading and trailing separators from a panel base
// path. An empty result maps to the root path "/". The returned value is
// guaranteed free of parent-directory segments, doubled separators and
// characters outside letters, digits, dot, underscore, hyphen and the
// separator itself.
func NormalizePath(raw string) (string, error) {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/", nil
	}
	if strings.Contains(trimmed, "//") {
		return "", fmt.Errorf("%w: invalid panel path %q: doubled separator", models.ErrConfiguration, raw)
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: invalid panel path %q: parent directory segment", models.ErrConfiguration, raw)
		}
	}
	if !panelPathRe.MatchString(trimmed) {
		return "", fmt.Errorf("%w: invalid panel path %q: only letters, digits, '.', '_', '-' and '/' are allowed",
			models.ErrConfiguration, raw)
	}
	return trimmed, nil
}

// ApplyDefaults fills raw options from file or environment defaults. Only
// fields the user did not set explicitly are touched.
func ApplyDefaults(opts *Options, fc *models.FileConfig, explicit func(flag string) bool) {
	if fc == nil {
		return
	}
	apply := func(flag string, dst *string, src string) {
		if src != "" && !explicit(flag) {
			*dst = src
		}
	}
	apply("panel-username", &opts.PanelUsername, fc.PanelUsername)
	apply("panel-password", &opts.PanelPassword, fc.PanelPassword)
	apply("server-username", &opts.ServerUsername, fc.SystemUsername)
	apply("server-password", &opts.ServerPassword, fc.SystemPassword)
	apply("port", &opts.Port, fc.PanelPort)
	apply("path", &opts.Path, fc.PanelPath)
	apply("version", &opts.Version, fc.Version)
}

func fillGenerated(req *models.InstallRequest) {
	if req.PanelUsername == "" {
		req.PanelUsername = randomString(10)
	}
	if req.PanelPassword == "" {
		req.PanelPassword = randomString(16)
	}
	if req.SystemUsername == "" {
		req.SystemUsername = "xui_" + randomString(6)
	}
	if req.SystemPassword == "" {
		req.SystemPassword = randomString(16)
	}
}

const randomAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomString(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(randomAlphabet))))
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken.
			panic(err)
		}
		b.WriteByte(randomAlphabet[idx.Int64()])
	}
	return b.String()
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
