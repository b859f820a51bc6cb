package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agents-ide/src/internal/constants"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestGetDefaultConfig(t *testing.T) {
	config := GetDefaultConfig()

	assert.Equal(t, "pyright-langserver", config.Server.Command)
	assert.Equal(t, []string{"--stdio"}, config.Server.Args)
	assert.Equal(t, constants.DefaultRequestTimeout, config.Timeouts.Request)
	assert.Equal(t, constants.DefaultInitializeTimeout, config.Timeouts.Initialize)
	assert.Equal(t, constants.DiagnosticsWait, config.Timeouts.DiagnosticsWait)
	assert.Equal(t, "info", config.Logging.Level)
	require.NoError(t, config.Validate())

	// Defaults must not alias the shared command slice
	config.Server.Args[0] = "--changed"
	assert.Equal(t, "--stdio", constants.DefaultLanguageServer[1])
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  command: gopls
  args: [serve]
  language_id: go
  initialization_options:
    usePlaceholders: true
  env:
    GOFLAGS: -mod=mod
    B: "2"
  max_message_bytes: 4096
timeouts:
  request: 5s
  diagnostics_wait: 750ms
logging:
  level: debug
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "gopls", config.Server.Command)
	assert.Equal(t, []string{"serve"}, config.Server.Args)
	assert.Equal(t, "go", config.Server.LanguageID)
	assert.Equal(t, map[string]interface{}{"usePlaceholders": true}, config.Server.InitializationOptions)
	assert.Equal(t, 5*time.Second, config.Timeouts.Request)
	assert.Equal(t, 750*time.Millisecond, config.Timeouts.DiagnosticsWait)
	assert.Equal(t, constants.DefaultInitializeTimeout, config.Timeouts.Initialize)
	assert.Equal(t, "debug", config.Logging.Level)

	proc := config.ProcessConfig()
	assert.Equal(t, []string{"B=2", "GOFLAGS=-mod=mod"}, proc.Env)
	assert.Equal(t, constants.ProcessShutdownTimeout, proc.ShutdownTimeout)

	sess := config.SessionConfig()
	assert.Equal(t, 5*time.Second, sess.RequestTimeout)
	assert.Equal(t, "gopls", sess.Process.Command)
	assert.Equal(t, 4096, sess.MaxMessageBytes)

	nav := config.NavigationOptions()
	assert.Equal(t, 750*time.Millisecond, nav.DiagnosticsWait)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "server: [unclosed", "failed to parse"},
		{"bad duration", "timeouts:\n  request: soon\n", "failed to parse"},
		{"args without command", "server:\n  args: [--stdio]\n", "server command is required"},
		{"bad level", "logging:\n  level: loud\n", "logging level"},
		{"negative message size", "server:\n  command: x\n  max_message_bytes: -1\n", "max_message_bytes"},
		{"missing working dir", "server:\n  command: x\n  working_dir: /definitely/not/here\n", "working_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	config := GetDefaultConfig()
	config.Server.Env = map[string]string{"PYTHONPATH": "/src"}
	config.Timeouts.Request = 12 * time.Second

	require.NoError(t, SaveConfig(config, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "request: 12s")

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}

func TestLoadConfigOrDefault(t *testing.T) {
	config, err := LoadConfigOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), config)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, GenerateDefaultConfig(path))
	config, err = LoadConfigOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), config)
}
