package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8000, cfg.IssuePort)
	assert.Equal(t, 8001, cfg.ValidatePort)
	assert.Equal(t, "serial", cfg.Dispatch)
	assert.Equal(t, "server_comm.log", cfg.MessageLog.Path)
	assert.Zero(t, cfg.TokenTTL)
	assert.Empty(t, cfg.Admin.Addr)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().IssuePort, cfg.IssuePort)
}

func TestLoadOverridesOnlyProvidedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"validate_port": 9001,
		"dispatch": "concurrent",
		"read_timeout": "250ms",
		"token_ttl": 90,
		"rate_limit": {"per_second": 2.5, "burst": 4},
		"message_log": {"backend": "sqlite", "path": "messages.db"},
		"admin": {"addr": "127.0.0.1:9090"},
		"log_level": ""
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8000, cfg.IssuePort)
	assert.Equal(t, 9001, cfg.ValidatePort)
	assert.Equal(t, "concurrent", cfg.Dispatch)
	assert.Equal(t, 250*time.Millisecond, cfg.ReadTimeout.Std())
	assert.Equal(t, 90*time.Second, cfg.TokenTTL.Std())
	assert.Equal(t, 2.5, cfg.RateLimit.PerSecond)
	assert.Equal(t, "sqlite", cfg.MessageLog.Backend)
	assert.Equal(t, "messages.db", cfg.MessageLog.Path)
	assert.Equal(t, "127.0.0.1:9090", cfg.Admin.Addr)
	assert.Equal(t, "info", cfg.LogLevel, "emptied field falls back to its default")
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"host": `), 0644))
	_, err := Load(bad)
	assert.Error(t, err)

	badDuration := filepath.Join(dir, "duration.json")
	require.NoError(t, os.WriteFile(badDuration, []byte(`{"read_timeout": "soon"}`), 0644))
	_, err = Load(badDuration)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogPath, "-")
	t.Setenv(EnvHost, "0.0.0.0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "-", cfg.LogPath)
	assert.Equal(t, "0.0.0.0", cfg.Host)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"same ports", func(c *Config) { c.ValidatePort = c.IssuePort }},
		{"port out of range", func(c *Config) { c.IssuePort = 70000 }},
		{"dispatch", func(c *Config) { c.Dispatch = "threaded" }},
		{"max connections", func(c *Config) { c.MaxConnections = 0 }},
		{"frame size", func(c *Config) { c.MaxFrameSize = 0 }},
		{"negative timeout", func(c *Config) { c.ReadTimeout = Duration(-time.Second) }},
		{"negative rate", func(c *Config) { c.RateLimit.PerSecond = -1 }},
		{"backend", func(c *Config) { c.MessageLog.Backend = "kafka" }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.IssuePort, cfg.ValidatePort = 0, 0
	assert.NoError(t, cfg.Validate(), "ephemeral ports may both be zero")
}

func TestMarshalledConfigLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := DefaultConfig()
	cfg.WriteTimeout = Duration(3 * time.Second)
	cfg.Admin.Addr = ":9090"
	data, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, loaded.WriteTimeout.Std())
	assert.Equal(t, ":9090", loaded.Admin.Addr)
}
