package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/audiovet/audiovet/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audiovet.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsApplied(t *testing.T) {
	path := writeConfig(t, "workers: 3\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 3 {
		t.Errorf("workers = %d, want 3", cfg.Workers)
	}
	if cfg.BufferMode != "auto" {
		t.Errorf("buffer_mode = %q, want default auto", cfg.BufferMode)
	}
	if cfg.LogLevel == "" {
		t.Error("expected default log_level to be set")
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 0 || cfg.BufferMode != "auto" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "wrokers: 3\n")
	if _, err := config.Load(path); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestLoadRejectsBadBufferMode(t *testing.T) {
	path := writeConfig(t, "buffer_mode: mmap\n")
	if _, err := config.Load(path); err == nil {
		t.Error("expected error for unknown buffer_mode")
	}
}
