// Package shell routes every state-mutating operation through a single
// dispatch point so a run can be previewed with --dry-run.
package shell

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/nvoss/xui-install/internal/models"
	"github.com/rs/zerolog"
)

// Executor is the dispatch point for external operations. Run, RunInput and
// WriteFile mutate system state and are rendered instead of executed in
// dry-run mode; Probe is read-only and always executes.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	RunInput(ctx context.Context, input string, name string, args ...string) ([]byte, error)
	Probe(ctx context.Context, name string, args ...string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
	DryRun() bool
}

// Live executes commands and file writes directly.
type Live struct {
	logger zerolog.Logger
}

// NewLive creates a live executor.
func NewLive(logger zerolog.Logger) *Live {
	return &Live{logger: logger}
}

// Run executes a mutating command. A non-zero exit wraps ErrExecution.
func (e *Live) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	e.logger.Debug().Str("cmd", Render(name, args...)).Msg("executing")
	return runCommand(ctx, "", name, args...)
}

// RunInput executes a mutating command with data on stdin.
func (e *Live) RunInput(ctx context.Context, input string, name string, args ...string) ([]byte, error) {
	e.logger.Debug().Str("cmd", Render(name, args...)).Msg("executing with stdin")
	return runCommand(ctx, input, name, args...)
}

// Probe executes a read-only command.
func (e *Live) Probe(ctx context.Context, name string, args ...string) ([]byte, error) {
	return runCommand(ctx, "", name, args...)
}

// WriteFile writes a file with the given permissions.
func (e *Live) WriteFile(path string, data []byte, perm os.FileMode) error {
	e.logger.Debug().Str("path", path).Str("mode", perm.String()).Msg("writing file")
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("%w: write %s: %v", models.ErrExecution, path, err)
	}
	return nil
}

// DryRun reports whether this executor only renders operations.
func (e *Live) DryRun() bool { return false }

// Dry renders every mutating operation without performing it. Probes still
// execute so convergence decisions match a live run.
type Dry struct {
	logger zerolog.Logger
}

// NewDry creates a dry-run executor.
func NewDry(logger zerolog.Logger) *Dry {
	return &Dry{logger: logger}
}

// Run renders the command and performs nothing.
func (e *Dry) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	e.logger.Info().Str("cmd", Render(name, args...)).Msg("dry-run: would execute")
	return nil, nil
}

// RunInput renders the command and its stdin pipeline and performs nothing.
func (e *Dry) RunInput(_ context.Context, input string, name string, args ...string) ([]byte, error) {
	rendered := fmt.Sprintf("printf '%%s' %s | %s", Quote(input), Render(name, args...))
	e.logger.Info().Str("cmd", rendered).Msg("dry-run: would execute")
	return nil, nil
}

// Probe executes a read-only command even in dry-run mode.
func (e *Dry) Probe(ctx context.Context, name string, args ...string) ([]byte, error) {
	return runCommand(ctx, "", name, args...)
}

// WriteFile renders the write and performs nothing.
func (e *Dry) WriteFile(path string, data []byte, perm os.FileMode) error {
	e.logger.Info().
		Str("path", path).
		Str("mode", perm.String()).
		Int("bytes", len(data)).
		Msg("dry-run: would write file")
	return nil
}

// DryRun reports whether this executor only renders operations.
func (e *Dry) DryRun() bool { return true }

func runCommand(ctx context.Context, input, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%w: %s: %v, output: %s",
			models.ErrExecution, Render(name, args...), err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

// Render formats a command line with shell quoting, suitable for copy-paste.
func Render(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, Quote(name))
	for _, arg := range args {
		parts = append(parts, Quote(arg))
	}
	return strings.Join(parts, " ")
}

// safeArg matches arguments that need no quoting under POSIX shells.
const safeArg = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789@%_+=:,./-"

// Quote shell-escapes a single argument using single quotes.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !strings.ContainsRune(safeArg, r) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
