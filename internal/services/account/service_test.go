package account

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

type recorder struct {
	commands [][]string
	inputs   []string
	files    map[string][]byte
	perms    map[string]os.FileMode
}

func newRecorder() (*recorder, *mockExecutor) {
	rec := &recorder{files: map[string][]byte{}, perms: map[string]os.FileMode{}}
	executor := &mockExecutor{
		runFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			rec.commands = append(rec.commands, append([]string{name}, args...))
			return nil, nil
		},
		runInputFunc: func(ctx context.Context, input, name string, args ...string) ([]byte, error) {
			rec.commands = append(rec.commands, append([]string{name}, args...))
			rec.inputs = append(rec.inputs, input)
			return nil, nil
		},
		writeFileFunc: func(path string, data []byte, perm os.FileMode) error {
			rec.files[path] = data
			rec.perms[path] = perm
			return nil
		},
	}
	return rec, executor
}

func TestProvision_CreatesAbsentAccount(t *testing.T) {
	rec, executor := newRecorder()
	executor.probeFunc = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("no such user")
	}

	svc := NewWithSudoersDir(testLogger(), executor, "/tmp/sudoers.d")
	err := svc.Provision(context.Background(), "ops", "secret")

	require.NoError(t, err)
	assert.Equal(t, []string{"useradd", "-m", "-s", "/bin/bash", "ops"}, rec.commands[0])
	assert.Equal(t, []string{"chpasswd"}, rec.commands[1])
	assert.Equal(t, []string{"ops:secret\n"}, rec.inputs)
	assert.Equal(t, []string{"usermod", "-aG", "sudo", "ops"}, rec.commands[2])
}

func TestProvision_UpdatesExistingAccount(t *testing.T) {
	rec, executor := newRecorder()
	executor.probeFunc = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("1001\n"), nil
	}

	svc := NewWithSudoersDir(testLogger(), executor, "/tmp/sudoers.d")
	err := svc.Provision(context.Background(), "ops", "secret")

	require.NoError(t, err)
	for _, cmd := range rec.commands {
		assert.NotEqual(t, "useradd", cmd[0], "existing account must not be recreated")
	}
	assert.Equal(t, []string{"ops:secret\n"}, rec.inputs)
}

func TestProvision_SudoersDropIn(t *testing.T) {
	rec, executor := newRecorder()

	svc := NewWithSudoersDir(testLogger(), executor, "/tmp/sudoers.d")
	err := svc.Provision(context.Background(), "ops", "secret")

	require.NoError(t, err)
	content, ok := rec.files["/tmp/sudoers.d/90-ops"]
	require.True(t, ok)
	assert.Equal(t, "ops ALL=(ALL) NOPASSWD: ALL\n", string(content))
	assert.Equal(t, os.FileMode(0o440), rec.perms["/tmp/sudoers.d/90-ops"])

	last := rec.commands[len(rec.commands)-1]
	assert.Equal(t, []string{"visudo", "-cf", "/tmp/sudoers.d/90-ops"}, last)
}

func TestProvision_InvalidSudoersIsFatal(t *testing.T) {
	_, executor := newRecorder()
	executor.runFunc = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name == "visudo" {
			return nil, errors.New("syntax error near line 1")
		}
		return nil, nil
	}

	svc := NewWithSudoersDir(testLogger(), executor, t.TempDir())
	err := svc.Provision(context.Background(), "ops", "secret")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed validation")
}

func TestProvision_UseraddFailure(t *testing.T) {
	_, executor := newRecorder()
	executor.probeFunc = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("no such user")
	}
	executor.runFunc = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name == "useradd" {
			return nil, errors.New("cannot create home")
		}
		return nil, nil
	}

	svc := New(testLogger(), executor)
	err := svc.Provision(context.Background(), "ops", "secret")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating user ops")
}
