package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateConnectivity(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRemote() error {
	if strings.TrimSpace(c.Remote.BaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("remote.base_url is required. Set FIELDSYNC_REMOTE_URL or edit %s (create with 'fieldsync config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Remote.BaseURL)
	if err != nil {
		return fmt.Errorf("remote.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("remote.base_url must use http or https, got %q", parsed.Scheme)
	}
	if c.Remote.TimeoutSeconds <= 0 {
		return errors.New("remote.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.BatchSize <= 0 {
		return errors.New("sync.batch_size must be positive")
	}
	if c.Sync.FrameChunkSize <= 0 {
		return errors.New("sync.frame_chunk_size must be positive")
	}
	if c.Sync.MaxRetries <= 0 {
		return errors.New("sync.max_retries must be positive")
	}
	if c.Sync.RetryBaseSeconds < 0 {
		return errors.New("sync.retry_base_seconds must be zero or positive")
	}
	if c.Sync.ProcessingTimeoutSeconds <= 0 {
		return errors.New("sync.processing_timeout_seconds must be positive")
	}
	if c.Sync.HeartbeatIntervalSeconds <= 0 {
		return errors.New("sync.heartbeat_interval_seconds must be positive")
	}
	if c.Sync.HeartbeatIntervalSeconds >= c.Sync.ProcessingTimeoutSeconds {
		return errors.New("sync.heartbeat_interval_seconds must be less than sync.processing_timeout_seconds")
	}
	if c.Sync.CompletedRetentionHours < 0 {
		return errors.New("sync.completed_retention_hours must be zero or positive")
	}
	if c.Sync.WifiIntervalSeconds <= 0 {
		return errors.New("sync.wifi_interval_seconds must be positive")
	}
	if c.Sync.CellularIntervalSeconds <= 0 {
		return errors.New("sync.cellular_interval_seconds must be positive")
	}
	return nil
}

func (c *Config) validateConnectivity() error {
	switch c.Connectivity.ForceClass {
	case "", "none", "wifi", "cellular", "ethernet":
	default:
		return fmt.Errorf("connectivity.force_class: unsupported value %q", c.Connectivity.ForceClass)
	}
	if c.Connectivity.PollIntervalSeconds < 0 {
		return errors.New("connectivity.poll_interval_seconds must be zero or positive")
	}
	for _, group := range [][]string{c.Connectivity.WifiPatterns, c.Connectivity.CellularPatterns, c.Connectivity.EthernetPatterns} {
		for _, pattern := range group {
			if _, err := filepath.Match(pattern, ""); err != nil {
				return fmt.Errorf("connectivity pattern %q: %w", pattern, err)
			}
		}
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if !c.Metrics.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(strings.TrimSpace(c.Metrics.Bind)); err != nil {
		return fmt.Errorf("metrics.bind: %w", err)
	}
	return nil
}
