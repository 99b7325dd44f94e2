package apt

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExecutor is a mock implementation of shell.Executor for testing.
type mockExecutor struct {
	runFunc       func(ctx context.Context, name string, args ...string) ([]byte, error)
	runInputFunc  func(ctx context.Context, input, name string, args ...string) ([]byte, error)
	probeFunc     func(ctx context.Context, name string, args ...string) ([]byte, error)
	writeFileFunc func(path string, data []byte, perm os.FileMode) error
	dryRun        bool
}

func (m *mockExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if m.runFunc != nil {
		return m.runFunc(ctx, name, args...)
	}
	return nil, nil
}

func (m *mockExecutor) RunInput(ctx context.Context, input, name string, args ...string) ([]byte, error) {
	if m.runInputFunc != nil {
		return m.runInputFunc(ctx, input, name, args...)
	}
	return nil, nil
}

func (m *mockExecutor) Probe(ctx context.Context, name string, args ...string) ([]byte, error) {
	if m.probeFunc != nil {
		return m.probeFunc(ctx, name, args...)
	}
	return nil, nil
}

func (m *mockExecutor) WriteFile(path string, data []byte, perm os.FileMode) error {
	if m.writeFileFunc != nil {
		return m.writeFileFunc(path, data, perm)
	}
	return nil
}

func (m *mockExecutor) DryRun() bool { return m.dryRun }

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestEnsurePackages(t *testing.T) {
	var commands [][]string
	executor := &mockExecutor{
		runFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			commands = append(commands, append([]string{name}, args...))
			return nil, nil
		},
	}

	svc := New(testLogger(), executor)
	err := svc.EnsurePackages(context.Background())

	require.NoError(t, err)
	require.Len(t, commands, 2)
	assert.Equal(t, []string{"apt-get", "update", "-q"}, commands[0])
	assert.Equal(t, "apt-get", commands[1][0])
	assert.Contains(t, commands[1], "install")
	assert.Contains(t, commands[1], "curl")
	assert.Contains(t, commands[1], "sudo")
	assert.Contains(t, commands[1], "ca-certificates")
}

func TestEnsurePackages_UpdateFails(t *testing.T) {
	executor := &mockExecutor{
		runFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, errors.New("mirror unreachable")
		},
	}

	svc := New(testLogger(), executor)
	err := svc.EnsurePackages(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "package index refresh failed")
}

func TestEnsurePackages_InstallFails(t *testing.T) {
	executor := &mockExecutor{
		runFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			if len(args) > 0 && args[0] == "install" {
				return nil, errors.New("unmet dependencies")
			}
			return nil, nil
		},
	}

	svc := New(testLogger(), executor)
	err := svc.EnsurePackages(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency install failed")
}
