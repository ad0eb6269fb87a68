package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
}

// Remote contains settings for the HTTP remote adapter.
type Remote struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	CompressFrames bool   `toml:"compress_frames"`
	UserAgent      string `toml:"user_agent"`
}

// Sync contains queue draining, retry and scheduling knobs.
type Sync struct {
	BatchSize                int  `toml:"batch_size"`
	FrameChunkSize           int  `toml:"frame_chunk_size"`
	MaxRetries               int  `toml:"max_retries"`
	RetryBaseSeconds         int  `toml:"retry_base_seconds"`
	ProcessingTimeoutSeconds int  `toml:"processing_timeout_seconds"`
	HeartbeatIntervalSeconds int  `toml:"heartbeat_interval_seconds"`
	CompletedRetentionHours  int  `toml:"completed_retention_hours"`
	WifiIntervalSeconds      int  `toml:"wifi_interval_seconds"`
	CellularIntervalSeconds  int  `toml:"cellular_interval_seconds"`
	AllowCellular            bool `toml:"allow_cellular"`
	DefaultPriority          int  `toml:"default_priority"`
}

// Connectivity contains interface classification and probing settings.
type Connectivity struct {
	WifiPatterns        []string `toml:"wifi_patterns"`
	CellularPatterns    []string `toml:"cellular_patterns"`
	EthernetPatterns    []string `toml:"ethernet_patterns"`
	PollIntervalSeconds int      `toml:"poll_interval_seconds"`
	// ForceClass pins the connectivity class ("wifi", "cellular", "ethernet", "none")
	// and disables probing. Empty means probe the host.
	ForceClass string `toml:"force_class"`
}

// Metrics contains the Prometheus endpoint configuration.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for fieldsync.
//
// Configuration sections by subsystem:
//   - Paths: data, log and socket locations
//   - Remote: HTTP remote adapter
//   - Sync: batch sizes, retry budget, timers
//   - Connectivity: network class detection
//   - Metrics: Prometheus endpoint
//   - Logging: log format and level
type Config struct {
	Paths        Paths        `toml:"paths"`
	Remote       Remote       `toml:"remote"`
	Sync         Sync         `toml:"sync"`
	Connectivity Connectivity `toml:"connectivity"`
	Metrics      Metrics      `toml:"metrics"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("fieldsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) applyEnv() {
	if value, ok := os.LookupEnv("FIELDSYNC_REMOTE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Remote.BaseURL = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("FIELDSYNC_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the location of the sync queue database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// RecordsDBPath returns the location of the local records database.
func (c *Config) RecordsDBPath() string {
	return filepath.Join(c.Paths.DataDir, "records.db")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "fieldsyncd.lock")
}

// RetryBaseInterval returns the linear backoff step.
func (c *Config) RetryBaseInterval() time.Duration {
	return time.Duration(c.Sync.RetryBaseSeconds) * time.Second
}

// ProcessingTimeout returns how long a claimed item may go without a heartbeat
// before another run may reclaim it.
func (c *Config) ProcessingTimeout() time.Duration {
	return time.Duration(c.Sync.ProcessingTimeoutSeconds) * time.Second
}

// HeartbeatInterval returns how often in-flight items refresh their heartbeat.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Sync.HeartbeatIntervalSeconds) * time.Second
}

// CompletedRetention returns how long completed items are kept before purge.
func (c *Config) CompletedRetention() time.Duration {
	return time.Duration(c.Sync.CompletedRetentionHours) * time.Hour
}

// RemoteTimeout returns the per-request timeout for the remote adapter.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// WifiInterval returns the periodic sync interval on Wi-Fi or ethernet.
func (c *Config) WifiInterval() time.Duration {
	return time.Duration(c.Sync.WifiIntervalSeconds) * time.Second
}

// CellularInterval returns the periodic sync interval on cellular.
func (c *Config) CellularInterval() time.Duration {
	return time.Duration(c.Sync.CellularIntervalSeconds) * time.Second
}

// PollInterval returns the connectivity probe interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Connectivity.PollIntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
