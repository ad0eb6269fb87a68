package config

const (
	defaultConfigPath               = "~/.config/fieldsync/config.toml"
	defaultDataDir                  = "~/.local/share/fieldsync"
	defaultLogDir                   = "~/.local/share/fieldsync/logs"
	defaultSocketName               = "fieldsync.sock"
	defaultRemoteBaseURL            = "http://127.0.0.1:8080/api/v1"
	defaultRemoteTimeoutSeconds     = 30
	defaultRemoteUserAgent          = "fieldsync/dev"
	defaultBatchSize                = 25
	defaultFrameChunkSize           = 100
	defaultMaxRetries               = 5
	defaultRetryBaseSeconds         = 30
	defaultProcessingTimeoutSeconds = 300
	defaultHeartbeatIntervalSeconds = 15
	defaultCompletedRetentionHours  = 72
	defaultWifiIntervalSeconds      = 900
	defaultCellularIntervalSeconds  = 3600
	defaultPollIntervalSeconds      = 30
	defaultMetricsBind              = "127.0.0.1:9477"
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
)

var (
	defaultWifiPatterns     = []string{"wl*", "wlan*", "wifi*"}
	defaultCellularPatterns = []string{"wwan*", "rmnet*", "usb*", "ppp*"}
	defaultEthernetPatterns = []string{"en*", "eth*"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Remote: Remote{
			BaseURL:        defaultRemoteBaseURL,
			TimeoutSeconds: defaultRemoteTimeoutSeconds,
			CompressFrames: true,
			UserAgent:      defaultRemoteUserAgent,
		},
		Sync: Sync{
			BatchSize:                defaultBatchSize,
			FrameChunkSize:           defaultFrameChunkSize,
			MaxRetries:               defaultMaxRetries,
			RetryBaseSeconds:         defaultRetryBaseSeconds,
			ProcessingTimeoutSeconds: defaultProcessingTimeoutSeconds,
			HeartbeatIntervalSeconds: defaultHeartbeatIntervalSeconds,
			CompletedRetentionHours:  defaultCompletedRetentionHours,
			WifiIntervalSeconds:      defaultWifiIntervalSeconds,
			CellularIntervalSeconds:  defaultCellularIntervalSeconds,
			AllowCellular:            false,
		},
		Connectivity: Connectivity{
			WifiPatterns:        append([]string(nil), defaultWifiPatterns...),
			CellularPatterns:    append([]string(nil), defaultCellularPatterns...),
			EthernetPatterns:    append([]string(nil), defaultEthernetPatterns...),
			PollIntervalSeconds: defaultPollIntervalSeconds,
		},
		Metrics: Metrics{
			Enabled: false,
			Bind:    defaultMetricsBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
