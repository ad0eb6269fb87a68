package main

import (
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"fieldsync/internal/ipc"
	"fieldsync/internal/testsupport"
)

func TestEnqueueAndQueueViews(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"--json", "enqueue", "session", "s-1", "create"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	var enq ipc.EnqueueResponse
	if err := json.Unmarshal([]byte(out), &enq); err != nil {
		t.Fatalf("decode enqueue output %q: %v", out, err)
	}
	if !enq.Created || enq.Item.ID == "" {
		t.Fatalf("unexpected enqueue response %+v", enq)
	}

	out, _, err = runCLI(t, []string{"enqueue", "session", "s-1", "update"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("enqueue update: %v", err)
	}
	requireContains(t, out, "Coalesced into "+enq.Item.ID)

	if _, _, err := runCLI(t, []string{"enqueue", "frames", "s-1", "delete"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected FRAMES DELETE to be rejected")
	}

	out, _, err = runCLI(t, []string{"queue", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Pending")

	out, _, err = runCLI(t, []string{"queue", "list", "--status", "pending"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "s-1")
	requireContains(t, out, "CREATE")

	out, _, err = runCLI(t, []string{"queue", "show", enq.Item.ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	requireContains(t, out, "Session s-1")

	if _, _, err := runCLI(t, []string{"queue", "show", "missing"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected missing item error")
	}

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Sync Status")
	requireContains(t, out, "offline")
	requireContains(t, out, "Never synced")
}

func TestSyncRequiresForceWhenOffline(t *testing.T) {
	env := setupCLITestEnv(t)

	bundle := filepath.Join(env.baseDir, "bundle.yaml")
	testsupport.WriteFile(t, bundle, `
sessions:
  - id: s-7
    captured_at: 2026-04-01T08:00:00Z
    updated_at: 2026-04-01T08:00:00Z
setup_configs:
  - id: cfg-1
    session_id: s-7
`)
	out, _, err := runCLI(t, []string{"import", bundle}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	requireContains(t, out, "Imported 1 sessions, 1 setup configs")

	if _, _, err := runCLI(t, []string{"sync"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected offline sync to be refused")
	}

	out, _, err = runCLI(t, []string{"sync", "--force"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sync --force: %v", err)
	}
	requireContains(t, out, "Completed")
	if _, ok := env.remote.Session("s-7"); !ok {
		t.Fatal("expected session uploaded")
	}

	out, _, err = runCLI(t, []string{"sync", "--force"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	requireContains(t, out, "Nothing to sync")
}

func TestQueueCommandsFallBackToStore(t *testing.T) {
	cfg, configPath := newCLIConfig(t)
	socket := filepath.Join(testsupport.BaseDir(cfg), "absent.sock")

	out, _, err := runCLI(t, []string{"queue", "list"}, socket, configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Queue is empty")

	out, _, err = runCLI(t, []string{"queue", "health"}, socket, configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Integrity check: yes")

	out, _, err = runCLI(t, []string{"queue", "purge", "--older-than", "1h"}, socket, configPath)
	if err != nil {
		t.Fatalf("queue purge: %v", err)
	}
	requireContains(t, out, "Purged 0 completed items")

	if _, _, err := runCLI(t, []string{"status"}, socket, configPath); err == nil {
		t.Fatal("expected status to require the daemon")
	}
}

func TestQueueClearRequiresSelector(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"queue", "clear"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected selector error")
	}
	out, _, err := runCLI(t, []string{"queue", "clear", "--all"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue clear --all: %v", err)
	}
	requireContains(t, out, "Cleared 0 queue items")

	out, _, err = runCLI(t, []string{"queue", "retry"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Retried 0 items")
}
