// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

// Package config provides layered configuration loading for Atelier.
//
// Configuration is loaded via Koanf v2 with clear precedence
// (highest priority wins):
//  1. Environment variables
//  2. Config file (config.yaml)
//  3. Built-in defaults
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Atelier service.
type Config struct {
	Storage    StorageConfig    `koanf:"storage"`
	Cache      CacheConfig      `koanf:"cache"`
	Provider   ProviderConfig   `koanf:"provider"`
	Registry   RegistryConfig   `koanf:"registry"`
	Generation GenerationConfig `koanf:"generation"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// StorageConfig locates the persisted resource collections.
type StorageConfig struct {
	// Root is the directory holding the JSON collection files.
	Root string `koanf:"root"`

	// ModelFile, TemplateFile and ArtifactFile are filenames relative to Root.
	ModelFile    string `koanf:"model_file"`
	TemplateFile string `koanf:"template_file"`
	ArtifactFile string `koanf:"artifact_file"`
}

// CacheConfig controls the binary artifact cache.
type CacheConfig struct {
	// Dir is the directory holding one archive per artifact.
	Dir string `koanf:"dir"`

	// Extension is the archive filename extension (without dot).
	Extension string `koanf:"extension"`

	// Retention is how long a cached bundle is kept after creation.
	Retention time.Duration `koanf:"retention"`

	// SweepInterval is the period of the background retention sweep.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// ProviderConfig configures the asynchronous image generation provider.
type ProviderConfig struct {
	URL     string        `koanf:"url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
}

// RegistryConfig configures the external model registry used for
// version and freshness lookups.
type RegistryConfig struct {
	URL     string        `koanf:"url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`

	// LookupsPerSecond rate-limits version lookups; listing all models
	// performs one lookup per model.
	LookupsPerSecond float64 `koanf:"lookups_per_second"`
	LookupBurst      int     `koanf:"lookup_burst"`
}

// GenerationConfig holds the fixed job parameters and prompt grammar.
type GenerationConfig struct {
	// PromptDelimiter joins the template base prompt and the user prompt.
	PromptDelimiter string `koanf:"prompt_delimiter"`

	// PackDelimiter separates parameter packs in template detail strings.
	PackDelimiter string `koanf:"pack_delimiter"`

	// ModifierDelimiter separates a model reference from its weight.
	ModifierDelimiter string `koanf:"modifier_delimiter"`

	// Sampler is the fixed scheduler name submitted with every job.
	Sampler string `koanf:"sampler"`

	// Width and Height are the fixed output dimensions.
	Width  int `koanf:"width"`
	Height int `koanf:"height"`

	// BatchSize is the administrator-configured quantity per job.
	BatchSize int `koanf:"batch_size"`

	// OutputType is the image encoding used for cached copies.
	OutputType string `koanf:"output_type"`

	// PollInterval is the fixed delay between provider polls.
	PollInterval time.Duration `koanf:"poll_interval"`

	// JobDeadline bounds the total poll time for one job.
	JobDeadline time.Duration `koanf:"job_deadline"`

	GuidanceDefault float64 `koanf:"guidance_default"`
	GuidanceMax     float64 `koanf:"guidance_max"`
	StepsDefault    int     `koanf:"steps_default"`
	StepsMax        int     `koanf:"steps_max"`
	ClipSkip        int     `koanf:"clip_skip"`
}

// ServerConfig configures the HTTP command surface.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`

	// JobRetention is how long finished jobs stay queryable before the
	// maintenance sweep evicts them from the job table.
	JobRetention time.Duration `koanf:"job_retention"`
}

// LoggingConfig configures the zerolog global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	return c.validateServer()
}

// validateStorage validates the resource store paths.
func (c *Config) validateStorage() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root is required")
	}
	if c.Storage.ModelFile == "" || c.Storage.TemplateFile == "" || c.Storage.ArtifactFile == "" {
		return fmt.Errorf("storage collection filenames must not be empty")
	}
	return nil
}

// validateCache validates cache directory and retention settings.
func (c *Config) validateCache() error {
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}
	if c.Cache.Retention <= 0 {
		return fmt.Errorf("cache.retention must be positive, got %s", c.Cache.Retention)
	}
	if c.Cache.SweepInterval < 0 {
		return fmt.Errorf("cache.sweep_interval must not be negative, got %s", c.Cache.SweepInterval)
	}
	return nil
}

// validateGeneration validates job parameter bounds.
func (c *Config) validateGeneration() error {
	if c.Generation.BatchSize < 1 {
		return fmt.Errorf("generation.batch_size must be at least 1, got %d", c.Generation.BatchSize)
	}
	if c.Generation.PollInterval <= 0 {
		return fmt.Errorf("generation.poll_interval must be positive, got %s", c.Generation.PollInterval)
	}
	if c.Generation.JobDeadline <= 0 {
		return fmt.Errorf("generation.job_deadline must be positive, got %s", c.Generation.JobDeadline)
	}
	if c.Generation.GuidanceMax < c.Generation.GuidanceDefault {
		return fmt.Errorf("generation.guidance_max must be >= guidance_default")
	}
	if c.Generation.StepsMax < c.Generation.StepsDefault {
		return fmt.Errorf("generation.steps_max must be >= steps_default")
	}
	return nil
}

// validateServer validates HTTP server settings.
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	return nil
}
