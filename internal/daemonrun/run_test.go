package daemonrun_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"fieldsync/internal/config"
	"fieldsync/internal/daemonrun"
	"fieldsync/internal/logging"
	"fieldsync/internal/testsupport"
)

func TestBuildRejectsUnknownForcedClass(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithForcedClass("satellite"))
	_, err := daemonrun.Build(cfg, logging.NewNop())
	if err == nil || !strings.Contains(err.Error(), "satellite") {
		t.Fatalf("expected force_class error, got %v", err)
	}
}

func TestBuildRegistersMetrics(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithForcedClass("ethernet"),
		testsupport.WithRemoteURL("http://127.0.0.1:9/api/v1"),
	)
	cfg.Metrics.Enabled = true
	reg := prometheus.NewRegistry()

	d, err := daemonrun.Build(cfg, logging.NewNop(), daemonrun.WithRegistry(reg))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, family := range families {
		if strings.HasPrefix(family.GetName(), "fieldsync_") {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected fieldsync metrics to be registered")
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := d.Status(context.Background()).Connectivity; got != "ethernet" && got != "none" {
		t.Fatalf("unexpected connectivity %q", got)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	var cfg *config.Config
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}
