package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codefionn/langsock/internal/consts"
	"github.com/codefionn/langsock/internal/logger"
	"github.com/codefionn/langsock/internal/protocol"
)

// Environment variables overriding file settings
const (
	EnvLogLevel        = "LANGSOCK_LOG_LEVEL"
	EnvLogPath         = "LANGSOCK_LOG_PATH"
	EnvMonitorInterval = "LANGSOCK_MONITOR_INTERVAL"
	EnvDisabled        = "LANGSOCK_DISABLED_COMMANDS"
)

// Source languages understood by the built-in handlers
const (
	LanguageTypeScript = "typescript"
	LanguageTSX        = "tsx"
	LanguagePython     = "python"
)

// Config represents server configuration
type Config struct {
	Language          string        `yaml:"language" json:"language"`                     // typescript, tsx, python
	MonitorInterval   time.Duration `yaml:"monitor_interval" json:"monitor_interval"`     // companion liveness poll interval
	LogLevel          string        `yaml:"log_level" json:"log_level"`                   // debug, info, warn, error, none
	LogPath           string        `yaml:"log_path" json:"log_path"`                     // empty logs to stderr
	SocketPermissions string        `yaml:"socket_permissions" json:"socket_permissions"` // octal, e.g. "0600"
	MaxConnections    int           `yaml:"max_connections" json:"max_connections"`
	MaxFrameSize      int           `yaml:"max_frame_size" json:"max_frame_size"`
	WriteTimeout      time.Duration `yaml:"write_timeout" json:"write_timeout"`
	CacheEntries      int           `yaml:"cache_entries" json:"cache_entries"` // 0 disables the response cache
	RateLimit         float64       `yaml:"rate_limit" json:"rate_limit"`       // requests per second per connection, 0 disables
	RateBurst         int           `yaml:"rate_burst" json:"rate_burst"`
	AuditDB           string        `yaml:"audit_db" json:"audit_db"` // SQLite path, empty disables auditing
	WatchSocket       bool          `yaml:"watch_socket" json:"watch_socket"`
	DisabledCommands  []string      `yaml:"disabled_commands" json:"disabled_commands"`
	PidFile           string        `yaml:"pid_file" json:"pid_file"`
	Pprof             PprofConfig   `yaml:"pprof" json:"pprof"`
}

// PprofConfig names the profile files to write. Everything is off by default.
type PprofConfig struct {
	CPUProfile       string `yaml:"cpu_profile" json:"cpu_profile"`
	HeapProfile      string `yaml:"heap_profile" json:"heap_profile"`
	GoroutineProfile string `yaml:"goroutine_profile" json:"goroutine_profile"`
	BlockProfile     string `yaml:"block_profile" json:"block_profile"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "langsock")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "langsock")
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, "langsock")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "langsock")
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Language:          LanguageTypeScript,
		MonitorInterval:   consts.DefaultMonitorInterval,
		LogLevel:          "info",
		SocketPermissions: consts.DefaultSocketPermissions,
		MaxConnections:    consts.DefaultMaxConnections,
		MaxFrameSize:      consts.DefaultMaxFrameSize,
		WriteTimeout:      consts.Timeout30Seconds,
		CacheEntries:      consts.DefaultCacheEntries,
		RateBurst:         1,
		WatchSocket:       true,
	}
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}

// Load loads configuration from a YAML or JSON file. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// JSON documents are valid YAML, so one decoder serves both.
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.Language == "" {
		config.Language = LanguageTypeScript
	}
	if config.SocketPermissions == "" {
		config.SocketPermissions = consts.DefaultSocketPermissions
	}

	return config, nil
}

// ApplyEnv overrides settings from the process environment.
func (c *Config) ApplyEnv() error {
	return c.ApplyEnvFrom(os.LookupEnv)
}

// ApplyEnvFrom overrides settings using lookup.
func (c *Config) ApplyEnvFrom(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		c.LogLevel = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLogPath); ok {
		c.LogPath = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvMonitorInterval); ok && strings.TrimSpace(v) != "" {
		d, err := parseInterval(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMonitorInterval, err)
		}
		c.MonitorInterval = d
	}
	if v, ok := lookup(EnvDisabled); ok {
		c.DisabledCommands = splitList(v)
	}
	return nil
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseInterval accepts a Go duration or a plain number of seconds.
func parseInterval(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	switch c.Language {
	case LanguageTypeScript, LanguageTSX, LanguagePython:
	default:
		return fmt.Errorf("unsupported language %q (want %s, %s or %s)", c.Language, LanguageTypeScript, LanguageTSX, LanguagePython)
	}
	if c.MonitorInterval < consts.MinMonitorInterval {
		return fmt.Errorf("monitor interval %v is below the minimum of %v", c.MonitorInterval, consts.MinMonitorInterval)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be positive, got %d", c.MaxConnections)
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("max frame size must be positive, got %d", c.MaxFrameSize)
	}
	if c.CacheEntries < 0 {
		return fmt.Errorf("cache entries must not be negative, got %d", c.CacheEntries)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("rate burst must be positive when rate limiting, got %d", c.RateBurst)
	}
	if _, err := c.SocketMode(); err != nil {
		return err
	}
	for _, name := range c.DisabledCommands {
		if _, err := protocol.ParseCommand(name); err != nil {
			return fmt.Errorf("invalid disabled command: %w", err)
		}
	}
	return nil
}

// SocketMode parses the octal socket permissions.
func (c *Config) SocketMode() (os.FileMode, error) {
	mode, err := strconv.ParseUint(c.SocketPermissions, 8, 32)
	if err != nil || mode > 0777 {
		return 0, fmt.Errorf("invalid socket permissions %q", c.SocketPermissions)
	}
	return os.FileMode(mode), nil
}

// Level returns the parsed log level.
func (c *Config) Level() logger.Level {
	return logger.ParseLevel(c.LogLevel)
}
