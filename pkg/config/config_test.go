package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("Expected default listen :8080, got %s", cfg.ListenAddr)
	}
	if cfg.Concurrency != 2 {
		t.Errorf("Expected default concurrency 2, got %d", cfg.Concurrency)
	}
	if cfg.JobTimeout != 30*time.Minute {
		t.Errorf("Expected default job timeout 30m, got %s", cfg.JobTimeout)
	}
	if cfg.JobRetention != 24*time.Hour {
		t.Errorf("Expected default retention 24h, got %s", cfg.JobRetention)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("listen_addr: \":9999\"\nconcurrency: 8\njob_timeout: 5m\nlog_level: debug\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("Expected :9999, got %s", cfg.ListenAddr)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("Expected concurrency 8, got %d", cfg.Concurrency)
	}
	if cfg.JobTimeout != 5*time.Minute {
		t.Errorf("Expected job timeout 5m, got %s", cfg.JobTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.LogLevel)
	}
	// Unset keys keep their defaults.
	if cfg.QueueSize != 1024 {
		t.Errorf("Expected default queue size 1024, got %d", cfg.QueueSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Error("Expected error for a named file that cannot be read")
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("ZARRBENCH_CONCURRENCY", "6")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Concurrency != 6 {
		t.Errorf("Expected concurrency 6 from environment, got %d", cfg.Concurrency)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"zero queue", func(c *Config) { c.QueueSize = 0 }},
		{"zero timeout", func(c *Config) { c.JobTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _ := Load("")
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
