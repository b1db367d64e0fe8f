package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JOB_STORE", "")
	t.Setenv("REMOTE_BASE_URL", "")
	cfg := Load()

	if cfg.JobStore != "memory" {
		t.Fatalf("expected memory job store, got %q", cfg.JobStore)
	}
	if cfg.SuggestionLimit != 5 {
		t.Fatalf("expected suggestion limit 5, got %d", cfg.SuggestionLimit)
	}
	if cfg.JobTTL != 7*24*time.Hour {
		t.Fatalf("unexpected job ttl %s", cfg.JobTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JOB_STORE", "Redis")
	t.Setenv("REMOTE_BASE_URL", "https://hr.example.com/api/")
	t.Setenv("REMOTE_TIMEOUT", "3s")
	t.Setenv("S3_PATH_STYLE", "true")
	t.Setenv("PROGRESS_EVERY", "not-a-number")

	cfg := Load()
	if cfg.JobStore != "redis" {
		t.Fatalf("expected lower-cased backend, got %q", cfg.JobStore)
	}
	if cfg.RemoteBaseURL != "https://hr.example.com/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.RemoteBaseURL)
	}
	if cfg.RemoteTimeout != 3*time.Second {
		t.Fatalf("unexpected remote timeout %s", cfg.RemoteTimeout)
	}
	if !cfg.S3PathStyle {
		t.Fatalf("expected path style enabled")
	}
	if cfg.ProgressEvery != 25 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.ProgressEvery)
	}
}
