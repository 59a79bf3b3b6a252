package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCommand(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("expected confirmation, got:\n%s", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(target, []byte("# existing\n"), 0o644); err != nil {
		t.Fatalf("write existing config: %v", err)
	}

	_, err := runCommand(t, "", "config", "init", "--path", target)
	if err == nil {
		t.Fatal("expected error for existing config without --overwrite")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := runCommand(t, "", "config", "init", "--path", target, "--overwrite")
	if err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("expected confirmation, got:\n%s", out)
	}
}

func TestConfigValidate(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	out, err := runCommand(t, cfgPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, cfgPath) {
		t.Fatalf("expected resolved path in output:\n%s", out)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("expected validity message, got:\n%s", out)
	}
}

func TestConfigShowPrintsEffectiveValues(t *testing.T) {
	cfgPath, cfg := writeTestConfig(t)

	out, err := runCommand(t, cfgPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, cfg.Paths.StagingDir) {
		t.Fatalf("expected staging dir in output:\n%s", out)
	}
	if !strings.Contains(out, "Concurrent jobs") {
		t.Fatalf("expected concurrency line, got:\n%s", out)
	}
	if !strings.Contains(out, "Video output") {
		t.Fatalf("expected video output line, got:\n%s", out)
	}
}
