// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the service configuration: embedded YAML defaults
// overlaid with SOLTRACE_* environment variables.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// MaxYAMLFileSize bounds config files to keep parsing cheap.
const MaxYAMLFileSize = 1 << 20

// FetchConfig configures the remote source fetcher.
type FetchConfig struct {
	// BaseURL is the raw-content host files are fetched from.
	BaseURL string `yaml:"base_url"`

	// TimeoutSeconds is the per-request HTTP timeout.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// RequestsPerSecond rate-limits outbound fetches.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// CacheDir enables the on-disk content cache when non-empty.
	CacheDir string `yaml:"cache_dir"`
}

// AnalysisConfig holds the default depth bounds for runs that do not
// override them per request.
type AnalysisConfig struct {
	// MaxImportDepth bounds import-closure ingestion.
	MaxImportDepth int `yaml:"max_import_depth"`

	// MaxCallDepth bounds call tree expansion.
	MaxCallDepth int `yaml:"max_call_depth"`

	// IngestConcurrency is the per-depth resolution parallelism.
	IngestConcurrency int `yaml:"ingest_concurrency"`
}

// Config is the full service configuration.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	Fetch    FetchConfig    `yaml:"fetch"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// Load parses the given YAML, falls back to the embedded defaults for
// anything missing, and applies environment overrides last.
//
// Environment overrides:
//
//	SOLTRACE_LISTEN_ADDR
//	SOLTRACE_FETCH_BASE_URL
//	SOLTRACE_FETCH_TIMEOUT_SECONDS
//	SOLTRACE_FETCH_REQUESTS_PER_SECOND
//	SOLTRACE_FETCH_CACHE_DIR
//	SOLTRACE_MAX_IMPORT_DEPTH
//	SOLTRACE_MAX_CALL_DEPTH
//	SOLTRACE_INGEST_CONCURRENCY
func Load(data []byte) (*Config, error) {
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("config: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing embedded defaults: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	slog.Info("configuration loaded",
		slog.String("listen_addr", cfg.ListenAddr),
		slog.String("fetch_base_url", cfg.Fetch.BaseURL),
		slog.Int("max_import_depth", cfg.Analysis.MaxImportDepth),
		slog.Int("max_call_depth", cfg.Analysis.MaxCallDepth),
		slog.Bool("cache_enabled", cfg.Fetch.CacheDir != ""),
	)
	return &cfg, nil
}

// LoadDefault loads the embedded defaults plus environment overrides.
func LoadDefault() (*Config, error) {
	return Load(nil)
}

// LoadFile reads and loads a YAML config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Load(data)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SOLTRACE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SOLTRACE_FETCH_BASE_URL"); v != "" {
		cfg.Fetch.BaseURL = v
	}
	if v := os.Getenv("SOLTRACE_FETCH_CACHE_DIR"); v != "" {
		cfg.Fetch.CacheDir = v
	}
	setIntEnv("SOLTRACE_FETCH_TIMEOUT_SECONDS", &cfg.Fetch.TimeoutSeconds)
	setIntEnv("SOLTRACE_MAX_IMPORT_DEPTH", &cfg.Analysis.MaxImportDepth)
	setIntEnv("SOLTRACE_MAX_CALL_DEPTH", &cfg.Analysis.MaxCallDepth)
	setIntEnv("SOLTRACE_INGEST_CONCURRENCY", &cfg.Analysis.IngestConcurrency)
	if v := os.Getenv("SOLTRACE_FETCH_REQUESTS_PER_SECOND"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			cfg.Fetch.RequestsPerSecond = parsed
		}
	}
}

func setIntEnv(name string, target *int) {
	if v := os.Getenv(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			*target = parsed
		}
	}
}

func validate(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if cfg.Fetch.BaseURL == "" {
		return fmt.Errorf("fetch.base_url must not be empty")
	}
	if cfg.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be positive")
	}
	if cfg.Fetch.RequestsPerSecond <= 0 {
		return fmt.Errorf("fetch.requests_per_second must be positive")
	}
	if cfg.Analysis.MaxImportDepth <= 0 {
		return fmt.Errorf("analysis.max_import_depth must be positive")
	}
	if cfg.Analysis.MaxCallDepth <= 0 {
		return fmt.Errorf("analysis.max_call_depth must be positive")
	}
	if cfg.Analysis.IngestConcurrency <= 0 {
		return fmt.Errorf("analysis.ingest_concurrency must be positive")
	}
	return nil
}
