package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoader_DefaultsOnly(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Agent != "claude" {
		t.Errorf("Agent = %q, want claude", cfg.Agent)
	}
	if cfg.Tracker != "json" {
		t.Errorf("Tracker = %q, want json", cfg.Tracker)
	}
	if cfg.Parallel != 1 {
		t.Errorf("Parallel = %d, want 1", cfg.Parallel)
	}
	if !cfg.AutoCommit {
		t.Error("AutoCommit = false, want true")
	}
	if cfg.ErrorHandling.Strategy != "stop" {
		t.Errorf("ErrorHandling.Strategy = %q, want stop", cfg.ErrorHandling.Strategy)
	}
	if cfg.ConflictResolution.ConfidenceThreshold != 0.75 {
		t.Errorf("ConflictResolution.ConfidenceThreshold = %v, want 0.75", cfg.ConflictResolution.ConfidenceThreshold)
	}
	if cfg.Sandbox.Mode != "workspace-write" {
		t.Errorf("Sandbox.Mode = %q, want workspace-write", cfg.Sandbox.Mode)
	}
}

func TestLoader_ReadsProjectConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	ralphDir := filepath.Join(dir, ".ralph-tui")
	if err := os.MkdirAll(ralphDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	content := "agent: gemini\nparallel: 3\ntracker: beads\n"
	if err := os.WriteFile(filepath.Join(ralphDir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Agent != "gemini" {
		t.Errorf("Agent = %q, want gemini", cfg.Agent)
	}
	if cfg.Parallel != 3 {
		t.Errorf("Parallel = %d, want 3", cfg.Parallel)
	}
	if cfg.Tracker != "beads" {
		t.Errorf("Tracker = %q, want beads", cfg.Tracker)
	}
	// untouched keys still carry their defaults
	if cfg.ErrorHandling.Strategy != "stop" {
		t.Errorf("ErrorHandling.Strategy = %q, want stop", cfg.ErrorHandling.Strategy)
	}
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	ralphDir := filepath.Join(dir, ".ralph-tui")
	if err := os.MkdirAll(ralphDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(ralphDir, "config.yaml"), []byte("agent: gemini\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("RALPH_AGENT", "codex")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Agent != "codex" {
		t.Errorf("Agent = %q, want codex (env override)", cfg.Agent)
	}
}

func TestLoader_WithConfigFile(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(explicit, []byte("agent: opencode\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := NewLoader().WithConfigFile(explicit).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Agent != "opencode" {
		t.Errorf("Agent = %q, want opencode", cfg.Agent)
	}
}

func TestLoader_ResolvesRelativeTrackerPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	ralphDir := filepath.Join(dir, ".ralph-tui")
	if err := os.MkdirAll(ralphDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	content := "trackerOptions:\n  path: prd.json\n"
	if err := os.WriteFile(filepath.Join(ralphDir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := filepath.Join(dir, "prd.json")
	if cfg.TrackerOptions.Path != want {
		t.Errorf("TrackerOptions.Path = %q, want %q", cfg.TrackerOptions.Path, want)
	}
}

func TestLoader_WithResolvePathsDisabled(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	ralphDir := filepath.Join(dir, ".ralph-tui")
	if err := os.MkdirAll(ralphDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	content := "trackerOptions:\n  path: prd.json\n"
	if err := os.WriteFile(filepath.Join(ralphDir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := NewLoader().WithResolvePaths(false).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.TrackerOptions.Path != "prd.json" {
		t.Errorf("TrackerOptions.Path = %q, want unresolved prd.json", cfg.TrackerOptions.Path)
	}
}
