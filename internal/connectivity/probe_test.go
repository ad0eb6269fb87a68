package connectivity_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/connectivity"
	"fieldsync/internal/testsupport"
)

type iface struct {
	name     string
	state    string
	carrier  string
	wireless bool
	devtype  string
}

func sysfs(t *testing.T, ifaces ...iface) string {
	t.Helper()
	root := t.TempDir()
	for _, i := range ifaces {
		dir := filepath.Join(root, i.name)
		testsupport.WriteFile(t, filepath.Join(dir, "operstate"), i.state+"\n")
		if i.carrier != "" {
			testsupport.WriteFile(t, filepath.Join(dir, "carrier"), i.carrier+"\n")
		}
		uevent := "INTERFACE=" + i.name + "\n"
		if i.devtype != "" {
			uevent += "DEVTYPE=" + i.devtype + "\n"
		}
		testsupport.WriteFile(t, filepath.Join(dir, "uevent"), uevent)
		if i.wireless {
			testsupport.WriteFile(t, filepath.Join(dir, "wireless", ".keep"), "")
		}
	}
	return root
}

func TestProbeClassify(t *testing.T) {
	cfg := config.Default().Connectivity
	cases := []struct {
		name   string
		ifaces []iface
		want   connectivity.Class
	}{
		{"nothing up", []iface{{name: "lo", state: "unknown", carrier: "1"}, {name: "wlan0", state: "down"}}, connectivity.ClassNone},
		{"wireless dir", []iface{{name: "radio0", state: "up", wireless: true}}, connectivity.ClassWifi},
		{"devtype wwan", []iface{{name: "modem0", state: "up", devtype: "wwan"}}, connectivity.ClassCellular},
		{"pattern cellular ppp", []iface{{name: "ppp0", state: "unknown", carrier: "1"}}, connectivity.ClassCellular},
		{"unknown without carrier", []iface{{name: "ppp0", state: "unknown"}}, connectivity.ClassNone},
		{"ethernet beats wifi", []iface{
			{name: "wlan0", state: "up", wireless: true},
			{name: "eth0", state: "up"},
		}, connectivity.ClassEthernet},
		{"wifi beats cellular", []iface{
			{name: "wwan0", state: "up"},
			{name: "wlan0", state: "up"},
		}, connectivity.ClassWifi},
		{"unmatched name", []iface{{name: "tun0", state: "up"}}, connectivity.ClassNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			probe := connectivity.NewProbeAt(sysfs(t, tc.ifaces...), cfg)
			got, err := probe.Classify()
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestProbeMissingRoot(t *testing.T) {
	probe := connectivity.NewProbeAt(filepath.Join(t.TempDir(), "missing"), config.Default().Connectivity)
	if class, err := probe.Classify(); err == nil || class != connectivity.ClassNone {
		t.Fatalf("expected error and none, got %s %v", class, err)
	}
}

func TestParseClass(t *testing.T) {
	if c, ok := connectivity.ParseClass(" WiFi "); !ok || c != connectivity.ClassWifi {
		t.Fatalf("expected wifi, got %q %v", c, ok)
	}
	if _, ok := connectivity.ParseClass("satellite"); ok {
		t.Fatal("expected unknown class rejected")
	}
	if !connectivity.ClassCellular.Metered() || connectivity.ClassEthernet.Metered() {
		t.Fatal("only cellular is metered")
	}
	if connectivity.ClassNone.Connected() {
		t.Fatal("none is not connected")
	}
}

func TestStaticEmitsChanges(t *testing.T) {
	src := connectivity.NewStatic(connectivity.ClassNone)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan connectivity.Class)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, changes) }()

	expect := func(want connectivity.Class) {
		t.Helper()
		select {
		case got := <-changes:
			if got != want {
				t.Fatalf("expected %s, got %s", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
	expect(connectivity.ClassNone)
	src.Set(connectivity.ClassWifi)
	expect(connectivity.ClassWifi)
	if src.Current() != connectivity.ClassWifi {
		t.Fatalf("unexpected current %s", src.Current())
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
