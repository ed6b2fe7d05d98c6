package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Backfill.ChunkDays != 7 {
		t.Errorf("chunk_days = %d", cfg.Backfill.ChunkDays)
	}
	if time.Duration(cfg.Worker.NotificationWindow) != 3*time.Hour {
		t.Errorf("notification_window = %v", cfg.Worker.NotificationWindow)
	}
	if time.Duration(cfg.Worker.BulkWindow) != 72*time.Hour {
		t.Errorf("bulk_window = %v", cfg.Worker.BulkWindow)
	}
}

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Remote.BaseURL == "" {
		t.Fatal("expected default base_url")
	}
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
remote:
  base_url: http://localhost:9000/v1
  language: sv
worker:
  notification_window: 30m
`))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Remote.BaseURL != "http://localhost:9000/v1" || cfg.Remote.Language != "sv" {
		t.Errorf("remote: %+v", cfg.Remote)
	}
	if time.Duration(cfg.Worker.NotificationWindow) != 30*time.Minute {
		t.Errorf("notification_window = %v", cfg.Worker.NotificationWindow)
	}
	// Untouched keys keep their defaults.
	if cfg.Backfill.ChunkDays != 7 {
		t.Errorf("chunk_days = %d", cfg.Backfill.ChunkDays)
	}
}

func TestFromYAMLRejectsBadDuration(t *testing.T) {
	if _, err := FromYAML([]byte("worker:\n  bulk_window: nonsense\n")); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestLoadFromWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	content := "remote:\n  base_url: http://example.test\n  language: fi\n"
	if err := os.WriteFile(filepath.Join(dir, "ahjosync.yml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Remote.BaseURL != "http://example.test" {
		t.Errorf("base_url = %q", cfg.Remote.BaseURL)
	}
}

func TestTokenResolvesNamedEnv(t *testing.T) {
	cfg := Default()
	cfg.Remote.TokenEnv = "AHJOSYNC_TEST_TOKEN"
	t.Setenv("AHJOSYNC_TEST_TOKEN", "secret-bearer")
	if got := cfg.Token(); got != "secret-bearer" {
		t.Errorf("token = %q", got)
	}
}
