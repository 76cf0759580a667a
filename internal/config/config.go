package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v9"
)

// Configuration system:
// - config.example.toml is generated with `proc_exporter generate-config`
// - environment variables (PROC_EXPORTER_*) override the file
// - command-line flags override both

// AppConfig represents the complete application configuration
type AppConfig struct {
	// Server configuration
	Server ServerConfig `toml:"server"`

	// Process tracker configuration
	Tracker TrackerConfig `toml:"tracker"`

	// Collector configurations
	Collectors CollectorConfig `toml:"collectors"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Listen address (default: "localhost:9190")
	ListenAddress string `toml:"listen_address" env:"PROC_EXPORTER_LISTEN_ADDRESS"`

	// Metrics endpoint path (default: "/metrics")
	MetricsPath string `toml:"metrics_path" env:"PROC_EXPORTER_METRICS_PATH"`

	// Enable pprof endpoint for debugging (default: false)
	PprofEnabled bool `toml:"pprof_enabled" env:"PROC_EXPORTER_PPROF_ENABLED"`
}

// TrackerConfig controls the refresh loop that owns the process records.
type TrackerConfig struct {
	// Interval between two refresh ticks (default: 2s)
	RefreshInterval time.Duration `toml:"refresh_interval" env:"PROC_EXPORTER_REFRESH_INTERVAL"`

	// Number of goroutines refreshing records in parallel (default: 4)
	Workers int `toml:"workers" env:"PROC_EXPORTER_WORKERS"`

	// Lifetime of cached parent lookups made between ticks (default: 10s)
	ParentCacheTTL time.Duration `toml:"parent_cache_ttl"`

	// Maximum number of cached parent lookups (default: 4096)
	ParentCacheSize int `toml:"parent_cache_size"`

	// Concurrent map backing the record table: "xsync", "sharded", "cornelk", "sync" (default: "xsync")
	MapImplementation string `toml:"map_implementation"`

	// Try to enable SeDebugPrivilege before opening processes, Windows only (default: false)
	EnableDebugPrivilege bool `toml:"enable_debug_privilege" env:"PROC_EXPORTER_DEBUG_PRIVILEGE"`

	// ProcessFilter configuration
	ProcessFilter ProcessFilterConfig `toml:"process_filter"`
}

// ProcessFilterConfig contains settings for filtering tracked processes.
type ProcessFilterConfig struct {
	// Enable process filtering (default: false). If false, all processes are tracked.
	Enabled bool `toml:"enabled"`

	// List of regular expressions to match against process names (e.g., "svchost.exe", "sqlservr.*").
	// If enabled, only processes whose snapshot name matches one of these patterns are tracked.
	// The format is Go's standard regular expression syntax.
	IncludeNames []string `toml:"include_names"`
}

// CollectorConfig defines which collectors are enabled and their settings
type CollectorConfig struct {
	// Process collector configuration
	Process ProcessConfig `toml:"process"`
}

// ProcessConfig contains settings for the per-process metrics collector.
type ProcessConfig struct {
	// Enable process metrics (default: true)
	Enabled bool `toml:"enabled"`

	// Export one series per process (default: true). If false only totals are exported.
	EnablePerProcess bool `toml:"enable_per_process"`
}

// LoggingConfig contains the complete logging configuration
type LoggingConfig struct {
	// Default logging settings applied to all loggers
	Defaults LogDefaults `toml:"defaults"`

	// Output configurations - can have multiple outputs
	Outputs []LogOutput `toml:"outputs"`
}

// LogDefaults contains default logger settings
type LogDefaults struct {
	// Log level (default: "info")
	Level string `toml:"level" env:"PROC_EXPORTER_LOG_LEVEL"`

	// Include caller information (default: 0)
	Caller int `toml:"caller"`

	// Time field name (default: "time")
	TimeField string `toml:"time_field"`

	// Time format (default: "" = RFC3339 with milliseconds)
	TimeFormat string `toml:"time_format"`

	// Time zone (default: "Local")
	TimeLocation string `toml:"time_location"`
}

// LogOutput represents a single output configuration
type LogOutput struct {
	// Output type: "console", "file", "syslog", "eventlog" (Windows only)
	Type string `toml:"type"`

	// Enable this output (default: true)
	Enabled bool `toml:"enabled"`

	// Configuration specific to the output type
	Console  *ConsoleConfig  `toml:"console,omitempty"`
	File     *FileConfig     `toml:"file,omitempty"`
	Syslog   *SyslogConfig   `toml:"syslog,omitempty"`
	Eventlog *EventlogConfig `toml:"eventlog,omitempty"`
}

// ConsoleConfig contains console/terminal output settings
type ConsoleConfig struct {
	// Use fast JSON output (default: false)
	FastIO bool `toml:"fast_io"`

	// Output format when fast_io=false: "auto", "logfmt", "glog" (default: "auto")
	Format string `toml:"format"`

	// Enable colored output (default: true)
	ColorOutput bool `toml:"color_output"`

	// Quote string values (default: true)
	QuoteString bool `toml:"quote_string"`

	// Output destination (default: "stderr")
	Writer string `toml:"writer"`

	// Use asynchronous writing (default: false)
	Async bool `toml:"async"`
}

// FileConfig contains file output settings
type FileConfig struct {
	// Log file path (required)
	Filename string `toml:"filename"`

	// Maximum file size in megabytes (default: 10)
	MaxSize int64 `toml:"max_size"`

	// Maximum number of old log files to keep (default: 7)
	MaxBackups int `toml:"max_backups"`

	// Time format for rotated filenames (default: "2006-01-02T15-04-05")
	TimeFormat string `toml:"time_format"`

	// Use local time for rotation timestamps (default: true)
	LocalTime bool `toml:"local_time"`

	// Include hostname in filename (default: true)
	HostName bool `toml:"host_name"`

	// Include process ID in filename (default: true)
	ProcessID bool `toml:"process_id"`

	// Create directory if it doesn't exist (default: true)
	EnsureFolder bool `toml:"ensure_folder"`

	// Use asynchronous writing (default: true)
	Async bool `toml:"async"`
}

// SyslogConfig contains syslog output settings
type SyslogConfig struct {
	// Network protocol (default: "udp")
	Network string `toml:"network"`

	// Syslog server address (default: "localhost:514")
	Address string `toml:"address"`

	// Hostname for syslog messages (default: system hostname)
	Hostname string `toml:"hostname"`

	// Syslog tag/program name (default: "proc_exporter")
	Tag string `toml:"tag"`

	// Message prefix marker (default: "@cee:")
	Marker string `toml:"marker"`

	// Use asynchronous writing (default: true)
	Async bool `toml:"async"`
}

// EventlogConfig contains Windows Event Log settings
type EventlogConfig struct {
	// Event source name (default: "proc_exporter")
	Source string `toml:"source"`

	// Event ID for log entries (default: 1000)
	ID int `toml:"id"`

	// Target host (default: local machine)
	Host string `toml:"host"`

	// Use asynchronous writing (default: false)
	Async bool `toml:"async"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			ListenAddress: "localhost:9190",
			MetricsPath:   "/metrics",
			PprofEnabled:  false,
		},
		Tracker: TrackerConfig{
			RefreshInterval:      2 * time.Second,
			Workers:              4,
			ParentCacheTTL:       10 * time.Second,
			ParentCacheSize:      4096,
			MapImplementation:    "xsync",
			EnableDebugPrivilege: false,
			ProcessFilter: ProcessFilterConfig{
				Enabled:      false,
				IncludeNames: []string{},
			},
		},
		Collectors: CollectorConfig{
			Process: ProcessConfig{
				Enabled:          true,
				EnablePerProcess: true,
			},
		},
		Logging: LoggingConfig{
			Defaults: LogDefaults{
				Level:        "info",
				Caller:       0,
				TimeField:    "time",
				TimeFormat:   "",
				TimeLocation: "Local",
			},
			Outputs: []LogOutput{
				{
					Type:    "console",
					Enabled: true,
					Console: &ConsoleConfig{
						FastIO:      false,
						Format:      "auto",
						ColorOutput: true,
						QuoteString: true,
						Writer:      "stderr",
						Async:       false,
					},
				},
				{
					Type:    "file",
					Enabled: false,
					File: &FileConfig{
						Filename:     "logs/proc_exporter.log",
						MaxSize:      10, // 10MB
						MaxBackups:   7,
						TimeFormat:   "2006-01-02T15-04-05",
						LocalTime:    true,
						HostName:     true,
						ProcessID:    true,
						EnsureFolder: true,
						Async:        true,
					},
				},
				{
					Type:    "syslog",
					Enabled: false,
					Syslog: &SyslogConfig{
						Network:  "udp",
						Address:  "localhost:514",
						Tag:      "proc_exporter",
						Hostname: "", // Uses system hostname by default
						Marker:   "@cee:",
						Async:    true,
					},
				},
				{
					Type:    "eventlog",
					Enabled: false,
					Eventlog: &EventlogConfig{
						Source: "proc_exporter",
						ID:     1000,
						Host:   "",    // localhost
						Async:  false, // Event log is typically synchronous
					},
				},
			},
		},
	}
}

// LoadConfig loads configuration from a TOML file, falling back to defaults
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	// If no config file specified, use defaults
	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("config file not found: %s", configPath)
	}

	// Parse TOML file
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	return config, nil
}

// ApplyEnv overrides configuration values from PROC_EXPORTER_* environment variables.
func (c *AppConfig) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	return nil
}

// SaveConfig saves the configuration to a TOML file
func SaveConfig(configPath string, config *AppConfig) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", configPath, err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// GenerateExampleConfig generates a TOML configuration file with default values
func GenerateExampleConfig(outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	header := `# proc_exporter example configuration
# This file is auto-generated and serves as an example configuration.
# Copy this file to create your own configuration and modify as needed.
# Environment variables prefixed with PROC_EXPORTER_ override values set here.
#
# Format: TOML (Tom's Obvious, Minimal Language)

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if err := toml.NewEncoder(file).Encode(DefaultConfig()); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

var validMapImplementations = map[string]bool{
	"xsync":   true,
	"sharded": true,
	"cornelk": true,
	"sync":    true,
}

// Validate checks the configuration for errors
func (c *AppConfig) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty")
	}
	if c.Server.MetricsPath == "" {
		return fmt.Errorf("server.metrics_path cannot be empty")
	}

	if c.Tracker.RefreshInterval <= 0 {
		return fmt.Errorf("tracker.refresh_interval must be positive, got %s", c.Tracker.RefreshInterval)
	}
	if c.Tracker.Workers < 1 {
		return fmt.Errorf("tracker.workers must be at least 1, got %d", c.Tracker.Workers)
	}
	if c.Tracker.ParentCacheSize < 1 {
		return fmt.Errorf("tracker.parent_cache_size must be at least 1, got %d", c.Tracker.ParentCacheSize)
	}
	if !validMapImplementations[c.Tracker.MapImplementation] {
		return fmt.Errorf("tracker.map_implementation %q is not one of xsync, sharded, cornelk, sync",
			c.Tracker.MapImplementation)
	}
	if c.Tracker.ProcessFilter.Enabled {
		if len(c.Tracker.ProcessFilter.IncludeNames) == 0 {
			return fmt.Errorf("tracker.process_filter is enabled but include_names is empty")
		}
		if _, err := c.Tracker.ProcessFilter.Compile(); err != nil {
			return err
		}
	}

	hasEnabledOutput := false
	for _, output := range c.Logging.Outputs {
		if output.Enabled {
			hasEnabledOutput = true
			break
		}
	}
	if !hasEnabledOutput {
		return fmt.Errorf("at least one logging output must be enabled")
	}

	return nil
}

// Compile returns the include patterns as regular expressions.
func (f ProcessFilterConfig) Compile() ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(f.IncludeNames))
	for _, pattern := range f.IncludeNames {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid process filter pattern %q: %w", pattern, err)
		}
		res = append(res, re)
	}
	return res, nil
}
