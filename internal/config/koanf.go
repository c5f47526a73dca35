// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/atelier/config.yaml",
	"/etc/atelier/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces Atelier environment variables: ATELIER_CACHE_RETENTION
// maps to cache.retention, ATELIER_PROVIDER_TOKEN to provider.token.
const envPrefix = "ATELIER_"

// Default returns a Config with all sensible default values. Defaults are
// applied first, then overridden by config file and env vars.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Root:         "/data/atelier",
			ModelFile:    "models.json",
			TemplateFile: "templates.json",
			ArtifactFile: "artifacts.json",
		},
		Cache: CacheConfig{
			Dir:           "/data/atelier/cache",
			Extension:     "zip",
			Retention:     7 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Provider: ProviderConfig{
			URL:     "",
			Token:   "",
			Timeout: 30 * time.Second,
		},
		Registry: RegistryConfig{
			URL:              "https://civitai.com/api/v1",
			Token:            "",
			Timeout:          30 * time.Second,
			LookupsPerSecond: 2,
			LookupBurst:      4,
		},
		Generation: GenerationConfig{
			PromptDelimiter:   ", ",
			PackDelimiter:     "|",
			ModifierDelimiter: "::",
			Sampler:           "EulerA",
			Width:             832,
			Height:            1216,
			BatchSize:         4,
			OutputType:        "png",
			PollInterval:      time.Second,
			JobDeadline:       5 * time.Minute,
			GuidanceDefault:   7.0,
			GuidanceMax:       30.0,
			StepsDefault:      25,
			StepsMax:          60,
			ClipSkip:          2,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3858,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{},
			JobRetention:    time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML config file (if exists)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Comma-separated env values for slice fields
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - ATELIER_PROVIDER_URL   -> provider.url
//   - ATELIER_CACHE_RETENTION -> cache.retention
//   - ATELIER_GENERATION_BATCH_SIZE -> generation.batch_size
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	// First segment is the config section, the rest is the field name.
	section, field, found := strings.Cut(key, "_")
	if !found {
		return section
	}
	return section + "." + field
}

// sliceConfigPaths defines which config paths are parsed as comma-separated slices.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}
