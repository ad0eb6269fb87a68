package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"fieldsync/internal/config"
	"fieldsync/internal/connectivity"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create fieldsync configuration",
	}
	configCmd.AddCommand(
		newConfigInitCommand(),
		newConfigValidateCommand(ctx),
		newConfigShowCommand(ctx),
	)
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("check config path: %w", statErr)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set remote.base_url (or export FIELDSYNC_REMOTE_URL) before starting the daemon.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing configuration file")
	return cmd
}

func initTarget(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		target, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return target, nil
	}
	target, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return target, nil
}

// newConfigValidateCommand loads the file itself so a broken config is
// reported here instead of by the root pre-run hook.
func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate the configuration and report the sync settings it yields",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			out := cmd.OutOrStdout()
			if !exists {
				fmt.Fprintf(out, "No config file at %s; defaults were used\n", path)
			}
			fmt.Fprint(out, renderTable([]string{"Setting", "Value"}, configSummaryRows(cfg, path),
				[]columnAlignment{alignLeft, alignLeft}, shouldColorize(out)))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func configSummaryRows(cfg *config.Config, path string) [][]string {
	return [][]string{
		{"Config path", path},
		{"Remote", cfg.Remote.BaseURL},
		{"Socket", cfg.Paths.SocketPath},
		{"Queue DB", cfg.QueueDBPath()},
		{"Records DB", cfg.RecordsDBPath()},
		{"Batch / frame chunk", fmt.Sprintf("%d / %d", cfg.Sync.BatchSize, cfg.Sync.FrameChunkSize)},
		{"Retries", fmt.Sprintf("%d, backoff step %s", cfg.Sync.MaxRetries, cfg.RetryBaseInterval())},
		{"Cellular sync", yesNo(cfg.Sync.AllowCellular)},
		{"Network now", describeNetwork(cfg)},
	}
}

// describeNetwork reports the class a daemon started now would see and
// whether automatic syncs would run on it.
func describeNetwork(cfg *config.Config) string {
	var class connectivity.Class
	source := "detected"
	if forced := strings.TrimSpace(cfg.Connectivity.ForceClass); forced != "" {
		parsed, ok := connectivity.ParseClass(forced)
		if !ok {
			return fmt.Sprintf("invalid force_class %q", forced)
		}
		class, source = parsed, "forced"
	} else {
		detected, err := connectivity.NewProbe(cfg.Connectivity).Classify()
		if err != nil {
			return fmt.Sprintf("network detection failed: %v", err)
		}
		class = detected
	}

	automatic := class.Connected() && (!class.Metered() || cfg.Sync.AllowCellular)
	verdict := "manual sync only"
	if automatic {
		verdict = "automatic sync"
	}
	return fmt.Sprintf("%s (%s, %s)", class, source, verdict)
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after defaults and overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, cfg)
			}
			data, err := toml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
