// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

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
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty storage root", func(c *Config) { c.Storage.Root = "" }},
		{"empty model file", func(c *Config) { c.Storage.ModelFile = "" }},
		{"empty cache dir", func(c *Config) { c.Cache.Dir = "" }},
		{"zero retention", func(c *Config) { c.Cache.Retention = 0 }},
		{"negative sweep interval", func(c *Config) { c.Cache.SweepInterval = -time.Minute }},
		{"zero batch size", func(c *Config) { c.Generation.BatchSize = 0 }},
		{"zero poll interval", func(c *Config) { c.Generation.PollInterval = 0 }},
		{"zero job deadline", func(c *Config) { c.Generation.JobDeadline = 0 }},
		{"guidance max below default", func(c *Config) { c.Generation.GuidanceMax = 1 }},
		{"steps max below default", func(c *Config) { c.Generation.StepsMax = 1 }},
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
		{"zero server timeout", func(c *Config) { c.Server.Timeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tt.name)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ATELIER_PROVIDER_URL", "provider.url"},
		{"ATELIER_PROVIDER_TOKEN", "provider.token"},
		{"ATELIER_CACHE_RETENTION", "cache.retention"},
		{"ATELIER_GENERATION_BATCH_SIZE", "generation.batch_size"},
		{"ATELIER_SERVER_RATE_LIMIT_REQS", "server.rate_limit_reqs"},
		{"ATELIER_LOGGING_LEVEL", "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yaml := `
storage:
  root: ` + dir + `
cache:
  dir: ` + filepath.Join(dir, "cache") + `
  retention: 48h
generation:
  batch_size: 2
server:
  port: 9999
`
	if err := os.WriteFile(configPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, configPath)
	t.Setenv("ATELIER_SERVER_PORT", "8844")
	t.Setenv("ATELIER_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// File overrides defaults
	if cfg.Cache.Retention != 48*time.Hour {
		t.Errorf("retention: expected 48h from file, got %s", cfg.Cache.Retention)
	}
	if cfg.Generation.BatchSize != 2 {
		t.Errorf("batch_size: expected 2 from file, got %d", cfg.Generation.BatchSize)
	}

	// Env overrides file
	if cfg.Server.Port != 8844 {
		t.Errorf("port: expected env override 8844, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level: expected env override debug, got %s", cfg.Logging.Level)
	}

	// Untouched defaults survive
	if cfg.Generation.PollInterval != time.Second {
		t.Errorf("poll interval: expected default 1s, got %s", cfg.Generation.PollInterval)
	}
}

func TestLoadCORSOriginsFromEnv(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("ATELIER_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Fatalf("expected 2 CORS origins, got %v", cfg.Server.CORSOrigins)
	}
	if cfg.Server.CORSOrigins[0] != "https://a.example" {
		t.Errorf("expected trimmed origin, got %q", cfg.Server.CORSOrigins[0])
	}
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 3858}
	if got := s.Addr(); got != "127.0.0.1:3858" {
		t.Errorf("Addr() = %q", got)
	}
}
