// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the fluxtree YAML configuration.
//
// The file lives at ~/.fluxtree/fluxtree.yaml unless a path is given and is
// created with defaults on first run. A handful of environment variables
// override it, so containers can be configured without a file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianFlux/pkg/telemetry"
	"github.com/AleutianAI/AleutianFlux/services/energy"
	"github.com/AleutianAI/AleutianFlux/services/energy/session"
	bdb "github.com/AleutianAI/AleutianFlux/services/energy/storage/badger"
)

// LogConfig controls console and file logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// ImportConfig tunes the CSV importer.
type ImportConfig struct {
	BatchSize        int     `yaml:"batch_size" validate:"min=0"`
	BatchesPerSecond float64 `yaml:"batches_per_second" validate:"min=0"`
	Timezone         string  `yaml:"timezone"`
}

// FluxtreeConfig is the whole configuration file.
type FluxtreeConfig struct {
	Log     LogConfig     `yaml:"log"`
	Service energy.Config `yaml:"service"`
	Import  ImportConfig  `yaml:"import"`
}

var (
	// Global is the loaded configuration.
	Global FluxtreeConfig
	once   sync.Once
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() FluxtreeConfig {
	cache := bdb.DefaultConfig()
	cache.Path = "~/.fluxtree/cache"
	return FluxtreeConfig{
		Log: LogConfig{Level: "info"},
		Service: energy.Config{
			Port:        12310,
			GinMode:     "release",
			Lookback:    session.DefaultLookback,
			InitTimeout: 30 * time.Second,
			Influx: energy.InfluxConfig{
				URL:            "http://localhost:8086",
				Org:            "aleutian",
				Bucket:         "homeassistant",
				HealthAttempts: 3,
				HealthInterval: 2 * time.Second,
			},
			Cache:     cache,
			Telemetry: telemetry.DefaultConfig(),
		},
		Import: ImportConfig{
			BatchSize:        500,
			BatchesPerSecond: 5,
			Timezone:         "Europe/Rome",
		},
	}
}

// DefaultPath returns ~/.fluxtree/fluxtree.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".fluxtree", "fluxtree.yaml"), nil
}

// Load reads the configuration into Global once. An empty path means
// DefaultPath.
func Load(path string) error {
	var err error
	once.Do(func() {
		Global, err = loadInternal(path)
	})
	return err
}

func loadInternal(path string) (FluxtreeConfig, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return FluxtreeConfig{}, err
		}
		path = p
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "First run detected, creating the config at %s\n", path)
		if err := createDefault(path); err != nil {
			return FluxtreeConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return FluxtreeConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return FluxtreeConfig{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}

	applyEnv(&cfg)
	cfg.Service.Cache.Path = expandHome(cfg.Service.Cache.Path)
	cfg.Log.Dir = expandHome(cfg.Log.Dir)

	if err := validate.Struct(cfg); err != nil {
		return FluxtreeConfig{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// applyEnv overrides file values with the environment.
func applyEnv(cfg *FluxtreeConfig) {
	s := &cfg.Service
	s.Port = getEnvInt("FLUXTREE_PORT", s.Port)
	s.Influx.URL = getEnvString("INFLUXDB_URL", s.Influx.URL)
	s.Influx.Token = getEnvString("INFLUXDB_TOKEN", s.Influx.Token)
	s.Influx.Org = getEnvString("INFLUXDB_ORG", s.Influx.Org)
	s.Influx.Bucket = getEnvString("INFLUXDB_BUCKET", s.Influx.Bucket)
	s.Telemetry.OTLPEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", s.Telemetry.OTLPEndpoint)
	cfg.Log.Level = getEnvString("FLUXTREE_LOG_LEVEL", cfg.Log.Level)
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
