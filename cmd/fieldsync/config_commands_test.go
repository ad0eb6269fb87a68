package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitWritesSample(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration to "+target)
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected existing config to be refused")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, "", ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg, configPath := newCLIConfig(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, "", configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, cfg.Paths.SocketPath)
	requireContains(t, out, "Network now")

	broken := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(broken, []byte("[sync]\nbogus_key = 1\n"), 0o644); err != nil {
		t.Fatalf("write broken config: %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "validate"}, "", broken); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestConfigValidateReportsForcedNetwork(t *testing.T) {
	cfg, configPath := newCLIConfig(t)
	cfg.Connectivity.ForceClass = "cellular"
	cfg.Sync.AllowCellular = false
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"config", "validate"}, "", configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "cellular (forced, manual sync only)")
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	cfg, configPath := newCLIConfig(t)

	out, _, err := runCLI(t, []string{"config", "show"}, "", configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[sync]")
	requireContains(t, out, cfg.Remote.BaseURL)

	out, _, err = runCLI(t, []string{"--json", "config", "show"}, "", configPath)
	if err != nil {
		t.Fatalf("config show --json: %v", err)
	}
	requireContains(t, out, cfg.Paths.DataDir)
}
