package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"fieldsync/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "fieldsync")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.SocketPath != filepath.Join(wantData, "fieldsync.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.Paths.SocketPath)
	}
	if cfg.QueueDBPath() != filepath.Join(wantData, "queue.db") {
		t.Fatalf("unexpected queue db path: %q", cfg.QueueDBPath())
	}
	if cfg.Sync.FrameChunkSize != 100 {
		t.Fatalf("expected frame chunk size 100, got %d", cfg.Sync.FrameChunkSize)
	}
	if cfg.Sync.AllowCellular {
		t.Fatal("expected cellular sync disabled by default")
	}
	if cfg.Sync.WifiIntervalSeconds >= cfg.Sync.CellularIntervalSeconds {
		t.Fatalf("expected wifi interval shorter than cellular, got %d >= %d",
			cfg.Sync.WifiIntervalSeconds, cfg.Sync.CellularIntervalSeconds)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
}

func TestLoadCustomPathOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	content := `[paths]
data_dir = "~/sync-data"

[remote]
base_url = "https://api.example.com/v2/"

[sync]
max_retries = 3
allow_cellular = true

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected existing config at %q, got %q exists=%v", configPath, resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "sync-data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.LogDir != filepath.Join(tempHome, ".local", "share", "fieldsync", "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Remote.BaseURL != "https://api.example.com/v2" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Remote.BaseURL)
	}
	if cfg.Sync.MaxRetries != 3 || !cfg.Sync.AllowCellular {
		t.Fatalf("unexpected sync section: %+v", cfg.Sync)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging normalized, got %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[sync]\nbatchsize = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestEnvOverridesRemoteURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FIELDSYNC_REMOTE_URL", "https://env.example.com")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Remote.BaseURL != "https://env.example.com" {
		t.Fatalf("expected env base url, got %q", cfg.Remote.BaseURL)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"missing remote", func(c *config.Config) { c.Remote.BaseURL = "" }, "remote.base_url is required"},
		{"bad scheme", func(c *config.Config) { c.Remote.BaseURL = "ftp://host" }, "http or https"},
		{"zero retries", func(c *config.Config) { c.Sync.MaxRetries = 0 }, "sync.max_retries"},
		{"zero chunk", func(c *config.Config) { c.Sync.FrameChunkSize = 0 }, "sync.frame_chunk_size"},
		{"heartbeat too slow", func(c *config.Config) {
			c.Sync.HeartbeatIntervalSeconds = c.Sync.ProcessingTimeoutSeconds
		}, "heartbeat_interval_seconds"},
		{"bad class", func(c *config.Config) { c.Connectivity.ForceClass = "satellite" }, "force_class"},
		{"bad pattern", func(c *config.Config) { c.Connectivity.WifiPatterns = []string{"wl["} }, "pattern"},
		{"bad metrics bind", func(c *config.Config) {
			c.Metrics.Enabled = true
			c.Metrics.Bind = "nope"
		}, "metrics.bind"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	defaults := config.Default()
	if decoded.Sync != defaults.Sync {
		t.Fatalf("sample sync section drifted from defaults: %+v vs %+v", decoded.Sync, defaults.Sync)
	}
	if decoded.Remote != defaults.Remote {
		t.Fatalf("sample remote section drifted from defaults: %+v vs %+v", decoded.Remote, defaults.Remote)
	}
}
