package main

import (
	"strings"
	"testing"
	"time"

	"fieldsync/internal/ipc"
)

func TestFormatStatusLabel(t *testing.T) {
	cases := map[string]string{
		"PENDING":      "Pending",
		"SETUP_CONFIG": "Setup Config",
		"  abandoned ": "Abandoned",
		"":             "",
	}
	for in, want := range cases {
		if got := formatStatusLabel(in); got != want {
			t.Fatalf("formatStatusLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSyncStatusLines(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-90 * time.Second)
	resp := &ipc.StatusResponse{
		Running:        true,
		PID:            42,
		Connectivity:   "cellular",
		LastSyncTime:   &last,
		LastRunID:      "run-1",
		PendingCount:   3,
		AbandonedCount: 1,
		LastError:      "remote unreachable",
	}
	joined := strings.Join(syncStatusLines(resp, now, false), "\n")
	for _, want := range []string{
		"Running (pid 42)",
		"cellular (metered)",
		"Last run 1m30s ago (run-1)",
		"Abandoned",
		"remote unreachable",
	} {
		requireContains(t, joined, want)
	}

	idle := strings.Join(syncStatusLines(&ipc.StatusResponse{Connectivity: "wifi"}, now, false), "\n")
	requireContains(t, idle, "Never synced")
	if strings.Contains(idle, "Abandoned") || strings.Contains(idle, "Last error") {
		t.Fatalf("unexpected warning lines in %q", idle)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[uint64]string{
		512:             "512 B",
		2048:            "2.0 KiB",
		5 * 1024 * 1024: "5.0 MiB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Fatalf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildQueueStatusRowsFollowsLifecycle(t *testing.T) {
	rows := buildQueueStatusRows(map[string]int{
		"ABANDONED":  1,
		"PENDING":    4,
		"COMPLETED":  2,
		"PROCESSING": 1,
	})
	want := []string{"Pending", "Processing", "Completed", "Abandoned"}
	if len(rows) != len(want) {
		t.Fatalf("unexpected rows %v", rows)
	}
	for i, label := range want {
		if rows[i][0] != label {
			t.Fatalf("row %d = %v, want %s", i, rows[i], label)
		}
	}
	if buildQueueStatusRows(nil) != nil {
		t.Fatal("expected nil rows for empty stats")
	}
}
