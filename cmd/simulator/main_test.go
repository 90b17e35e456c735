package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunDefaultScenario(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-duration", "10s"}, &out); err != nil {
		t.Fatalf("run error: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "100 steps") {
		t.Fatalf("summary missing step count:\n%s", got)
	}
	if !strings.Contains(got, "capture radius") {
		t.Fatalf("summary missing capture radius:\n%s", got)
	}
}

func TestRunShippedScenario(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	args := []string{"-config", "../../configs/rooftop.yaml", "-duration", "2s", "-tick", "200ms"}
	if err := run(context.Background(), args, &out); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !strings.Contains(out.String(), "10 steps") {
		t.Fatalf("unexpected summary:\n%s", out.String())
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("operator:\n  dish: nowhere\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := run(context.Background(), []string{"-config", path}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected unknown operator dish to fail")
	}
	if err := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected missing config to fail")
	}
}

func TestRunRejectsTruncatedTLE(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	path := filepath.Join(t.TempDir(), "sat.yaml")
	body := "target:\n  tle_line1: \"1 25544U\"\n  tle_line2: \"2 25544\"\nsites:\n  - id: a\noperator:\n  dish: a\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	err := run(context.Background(), []string{"-config", path}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("run() = %v, want an invalid config error", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	if err := run(ctx, []string{"-duration", "10s"}, &out); err != nil {
		t.Fatalf("cancelled run should still summarise, got %v", err)
	}
	if !strings.Contains(out.String(), "0 steps") {
		t.Fatalf("unexpected summary:\n%s", out.String())
	}
}

func TestRunSatelliteScenario(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	args := []string{"-config", "../../configs/satellite.yaml", "-duration", "1s"}
	if err := run(context.Background(), args, &out); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !strings.Contains(out.String(), "10 steps") {
		t.Fatalf("unexpected summary:\n%s", out.String())
	}
}
