// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in priority
// order. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/coursetrace/config.yaml",
	"/etc/coursetrace/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "COURSETRACE_CONFIG"

// envPrefix namespaces every environment override.
const envPrefix = "COURSETRACE_"

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. COURSETRACE_* environment variables (highest priority)
//
// The result is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the path of the first config file that exists,
// or empty string when none do.
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

// envTransformFunc maps COURSETRACE_* variable names to koanf paths.
// Unknown keys map to empty string and are skipped, so unrelated
// environment variables cannot pollute the configuration.
//
// Examples:
//   - COURSETRACE_SERVER_PORT       -> server.port
//   - COURSETRACE_QUEUE_BACKEND     -> queue.backend
//   - COURSETRACE_NATS_URL          -> queue.nats.url
//   - COURSETRACE_HOST_TOKEN        -> host.token
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	envMappings := map[string]string{
		// Server
		"server_host":    "server.host",
		"server_port":    "server.port",
		"server_timeout": "server.timeout",

		// Queue
		"queue_backend":                "queue.backend",
		"queue_buffer_size":            "queue.buffer_size",
		"queue_retry_max_retries":      "queue.retry_max_retries",
		"queue_retry_initial_interval": "queue.retry_initial_interval",
		"queue_retry_max_interval":     "queue.retry_max_interval",
		"queue_retry_multiplier":       "queue.retry_multiplier",
		"queue_close_timeout":          "queue.close_timeout",

		// NATS backend
		"nats_url":             "queue.nats.url",
		"nats_durable_name":    "queue.nats.durable_name",
		"nats_queue_group":     "queue.nats.queue_group",
		"nats_subscribers":     "queue.nats.subscribers_count",
		"nats_ack_wait":        "queue.nats.ack_wait",
		"nats_max_deliver":     "queue.nats.max_deliver",
		"nats_connect_timeout": "queue.nats.connect_timeout",

		// Host platform client
		"host_url":               "host.url",
		"host_token":             "host.token",
		"host_timeout":           "host.timeout",
		"host_breaker_threshold": "host.breaker_failure_threshold",
		"host_breaker_timeout":   "host.breaker_timeout",

		// API
		"api_auth_token":        "api.auth_token",
		"api_rate_limit_reqs":   "api.rate_limit_reqs",
		"api_rate_limit_window": "api.rate_limit_window",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
