package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistin/proxyspace-hydra/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")

	logger, closer := New(config.LoggingConfig{
		Level:    "warn",
		Format:   "json",
		Output:   path,
		Rotation: config.RotationConfig{MaxSizeMB: 1, MaxBackups: 1},
	}, false)

	logger.Info("not written")
	logger.Warn("written", slog.String("path", "/hydra/level"))
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "not written")
	assert.Contains(t, string(data), `"msg":"written"`)
	assert.Contains(t, string(data), `"path":"/hydra/level"`)
}

func TestNew_DebugOverridesLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	logger, closer := New(config.LoggingConfig{Level: "error", Format: "text", Output: path}, true)
	logger.Debug("routed")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=routed")
}

func TestNew_StdoutCloserIsNoop(t *testing.T) {
	_, closer := New(config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"}, false)
	assert.NoError(t, closer.Close())
}
