package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRejectsPositionalArguments(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetErr(&out)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"extra"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected positional argument rejection, got %v", err)
	}
}

func TestRejectsUnreadableConfig(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetErr(&out)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", t.TempDir()})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected config load error, got %v", err)
	}
}
