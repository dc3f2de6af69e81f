package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediaforge/internal/testsupport"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[2].Detail)
	}
}

func TestMissingSkipsOptional(t *testing.T) {
	statuses := []Status{
		{Name: "a", Available: true},
		{Name: "b", Optional: true},
		{Name: "c"},
	}
	missing := Missing(statuses)
	if len(missing) != 1 || missing[0].Name != "c" {
		t.Fatalf("unexpected missing set %#v", missing)
	}
}

func TestPreflight(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := Preflight(cfg); err != nil {
		t.Fatalf("expected stubbed binaries to satisfy preflight, got %v", err)
	}

	cfg.Engine.FFprobeBinary = "clearly-not-present-ffprobe"
	err := Preflight(cfg)
	if err == nil || !strings.Contains(err.Error(), "FFprobe") {
		t.Fatalf("expected FFprobe to be reported missing, got %v", err)
	}
}
