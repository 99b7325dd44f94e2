package shell

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvoss/xui-install/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"simple":      "simple",
		"with space":  "'with space'",
		"":            "''",
		"a=b":         "a=b",
		"/usr/bin/ls": "/usr/bin/ls",
		"it's":        `'it'\''s'`,
		"a;b":         "'a;b'",
		"$HOME":       "'$HOME'",
	}
	for in, want := range tests {
		assert.Equal(t, want, Quote(in), in)
	}
}

func TestRender(t *testing.T) {
	assert.Equal(t, "apt-get install -y curl", Render("apt-get", "install", "-y", "curl"))
	assert.Equal(t, "useradd -m 'bad name'", Render("useradd", "-m", "bad name"))
}

func TestLive_RunFailureWrapsExecutionError(t *testing.T) {
	executor := NewLive(testLogger())

	_, err := executor.Run(context.Background(), "sh", "-c", "echo broken >&2; exit 1")

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrExecution)
	assert.Contains(t, err.Error(), "broken")
}

func TestLive_RunSuccess(t *testing.T) {
	executor := NewLive(testLogger())

	output, err := executor.Run(context.Background(), "sh", "-c", "echo ok")

	require.NoError(t, err)
	assert.Contains(t, string(output), "ok")
}

func TestLive_RunInput(t *testing.T) {
	executor := NewLive(testLogger())

	output, err := executor.RunInput(context.Background(), "hello\n", "cat")

	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(output))
}

func TestLive_WriteFile(t *testing.T) {
	executor := NewLive(testLogger())
	path := filepath.Join(t.TempDir(), "out.txt")

	err := executor.WriteFile(path, []byte("data"), 0o640)

	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
	assert.False(t, executor.DryRun())
}

func TestDry_RunPerformsNothing(t *testing.T) {
	executor := NewDry(testLogger())

	output, err := executor.Run(context.Background(), "rm", "-rf", "/usr/local/x-ui")

	require.NoError(t, err)
	assert.Nil(t, output)
	assert.True(t, executor.DryRun())
}

func TestDry_WriteFilePerformsNothing(t *testing.T) {
	executor := NewDry(testLogger())
	path := filepath.Join(t.TempDir(), "never.txt")

	err := executor.WriteFile(path, []byte("data"), 0o644)

	require.NoError(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDry_ProbeStillExecutes(t *testing.T) {
	executor := NewDry(testLogger())

	output, err := executor.Probe(context.Background(), "sh", "-c", "echo probed")

	require.NoError(t, err)
	assert.Contains(t, string(output), "probed")
}
