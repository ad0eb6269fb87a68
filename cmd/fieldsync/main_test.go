package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	var buf bytes.Buffer
	if got := exitCode(nil, &buf); got != 0 || buf.Len() != 0 {
		t.Fatalf("nil error: code %d output %q", got, buf.String())
	}
	if got := exitCode(fmt.Errorf("sync: %w", context.Canceled), &buf); got != exitInterrupted || buf.Len() != 0 {
		t.Fatalf("interrupted: code %d output %q", got, buf.String())
	}
	if got := exitCode(errors.New("daemon not running"), &buf); got != 1 {
		t.Fatalf("expected exit code 1, got %d", got)
	}
	requireContains(t, buf.String(), "fieldsync: daemon not running")
}
