package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/codefionn/tokengate/internal/consts"
)

// Environment variables that override the file.
const (
	EnvLogLevel = "TOKENGATE_LOG_LEVEL"
	EnvLogPath  = "TOKENGATE_LOG_PATH"
	EnvHost     = "TOKENGATE_HOST"
)

// Duration is a time.Duration written as a Go duration string ("30s").
// A bare JSON number is read as seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds: %s", data)
	}
	*d = Duration(seconds * float64(time.Second))
	return nil
}

// Config is the server configuration
type Config struct {
	Host           string           `json:"host"`
	IssuePort      int              `json:"issue_port"`
	ValidatePort   int              `json:"validate_port"`
	Dispatch       string           `json:"dispatch"`        // serial, concurrent
	MaxConnections int              `json:"max_connections"` // concurrent dispatch only
	ReadTimeout    Duration         `json:"read_timeout,omitempty"`
	WriteTimeout   Duration         `json:"write_timeout,omitempty"`
	TokenTTL       Duration         `json:"token_ttl,omitempty"` // 0 accepts tokens of any age
	MaxIDSize      int              `json:"max_id_size"`
	MaxFrameSize   int              `json:"max_frame_size"`
	RateLimit      RateLimitConfig  `json:"rate_limit"`
	MessageLog     MessageLogConfig `json:"message_log"`
	Admin          AdminConfig      `json:"admin"`
	LockPath       string           `json:"lock_path"`
	PIDPath        string           `json:"pid_path"`
	LogLevel       string           `json:"log_level"` // debug, info, warn, error, none
	LogPath        string           `json:"log_path"`  // "-" for stderr
}

// RateLimitConfig throttles connections per remote host; zero disables it.
type RateLimitConfig struct {
	PerSecond float64  `json:"per_second"`
	Burst     int      `json:"burst"`
	IdleTTL   Duration `json:"idle_ttl,omitempty"`
}

// MessageLogConfig selects where validated messages are recorded.
type MessageLogConfig struct {
	Backend string `json:"backend"` // file, sqlite
	Path    string `json:"path"`
}

// AdminConfig configures the HTTP health and metrics endpoint; an empty
// address disables it.
type AdminConfig struct {
	Addr  string `json:"addr"`
	Pprof bool   `json:"pprof"` // mount /debug/pprof on the admin address
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "tokengate")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "tokengate")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "tokengate")
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, "tokengate")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "tokengate")
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, "tokengate")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", "tokengate")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "tokengate")
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	stateDir := defaultStateDir()

	return &Config{
		Host:           consts.DefaultHost,
		IssuePort:      consts.DefaultIssuePort,
		ValidatePort:   consts.DefaultValidatePort,
		Dispatch:       "serial",
		MaxConnections: consts.DefaultMaxConnections,
		MaxIDSize:      consts.MaxIDSize,
		MaxFrameSize:   consts.MaxFrameSize,
		MessageLog: MessageLogConfig{
			Backend: "file",
			Path:    consts.DefaultMessageLogPath,
		},
		LockPath: filepath.Join(stateDir, "tokengate.lock"),
		PIDPath:  filepath.Join(stateDir, "tokengate.pid"),
		LogLevel: "info",
		LogPath:  filepath.Join(stateDir, "tokengate.log"),
	}
}

// Load loads configuration from file and applies environment overrides. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			// Unmarshal into default config (overrides only provided fields)
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	config.ApplyEnv(os.Getenv)
	config.fillDefaults()
	return config, nil
}

// ApplyEnv overrides fields from the TOKENGATE_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(getenv(EnvLogPath)); v != "" {
		c.LogPath = v
	}
	if v := strings.TrimSpace(getenv(EnvHost)); v != "" {
		c.Host = v
	}
}

// fillDefaults restores defaults for fields a file explicitly emptied.
func (c *Config) fillDefaults() {
	defaults := DefaultConfig()
	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.Dispatch == "" {
		c.Dispatch = defaults.Dispatch
	}
	if c.MessageLog.Backend == "" {
		c.MessageLog.Backend = defaults.MessageLog.Backend
	}
	if c.MessageLog.Path == "" {
		c.MessageLog.Path = defaults.MessageLog.Path
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.LogPath == "" {
		c.LogPath = defaults.LogPath
	}
}

// Validate reports the first setting the server cannot run with.
func (c *Config) Validate() error {
	for name, port := range map[string]int{"issue_port": c.IssuePort, "validate_port": c.ValidatePort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s %d out of range", name, port)
		}
	}
	if c.IssuePort != 0 && c.IssuePort == c.ValidatePort {
		return fmt.Errorf("issue_port and validate_port must differ (both %d)", c.IssuePort)
	}

	switch strings.ToLower(c.Dispatch) {
	case "serial", "concurrent":
	default:
		return fmt.Errorf("unknown dispatch mode %q", c.Dispatch)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive")
	}
	if c.MaxIDSize <= 0 || c.MaxFrameSize <= 0 {
		return fmt.Errorf("max_id_size and max_frame_size must be positive")
	}

	for name, d := range map[string]Duration{
		"read_timeout":        c.ReadTimeout,
		"write_timeout":       c.WriteTimeout,
		"token_ttl":           c.TokenTTL,
		"rate_limit.idle_ttl": c.RateLimit.IdleTTL,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	switch strings.ToLower(c.MessageLog.Backend) {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown message_log backend %q", c.MessageLog.Backend)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "none", "off":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}
