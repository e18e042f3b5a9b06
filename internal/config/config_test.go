// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()
	if err := defaultConfig().Validate(); err != nil {
		t.Errorf("defaults fail validation: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad backend", func(c *Config) { c.Queue.Backend = "rabbit" }},
		{"nats without url", func(c *Config) { c.Queue.Backend = "nats"; c.Queue.NATS.URL = "" }},
		{"tenant without tag", func(c *Config) {
			c.Tenants = []TenantConfig{{Driver: "sqlite3", DSN: ":memory:"}}
		}},
		{"duplicate tenant tag", func(c *Config) {
			c.Tenants = []TenantConfig{
				{Tag: "acme", Driver: "sqlite3", DSN: ":memory:"},
				{Tag: "acme", Driver: "duckdb", DSN: "/data/acme.duckdb"},
			}
		}},
		{"bad tenant driver", func(c *Config) {
			c.Tenants = []TenantConfig{{Tag: "acme", Driver: "postgres", DSN: "x"}}
		}},
		{"tenant without dsn", func(c *Config) {
			c.Tenants = []TenantConfig{{Tag: "acme", Driver: "sqlite3"}}
		}},
		{"bad host url", func(c *Config) { c.Host.URL = "lms.example.com" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestDefaultTenantTags(t *testing.T) {
	t.Parallel()
	cfg := defaultConfig()
	cfg.Tenants = []TenantConfig{
		{Tag: "acme", Driver: "sqlite3", DSN: ":memory:"},
		{Tag: "globex", Driver: "sqlite3", DSN: ":memory:", Default: true},
		{Tag: "initech", Driver: "sqlite3", DSN: ":memory:", Default: true},
	}
	got := cfg.DefaultTenantTags()
	if len(got) != 2 || got[0] != "globex" || got[1] != "initech" {
		t.Errorf("DefaultTenantTags() = %v, want [globex initech] in listed order", got)
	}
}

func TestEnvTransform(t *testing.T) {
	t.Parallel()
	tests := []struct {
		env  string
		want string
	}{
		{"COURSETRACE_SERVER_PORT", "server.port"},
		{"COURSETRACE_QUEUE_BACKEND", "queue.backend"},
		{"COURSETRACE_NATS_URL", "queue.nats.url"},
		{"COURSETRACE_HOST_TOKEN", "host.token"},
		{"COURSETRACE_LOG_LEVEL", "logging.level"},
		{"COURSETRACE_UNRELATED", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%s) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestLoadLayersFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9000
queue:
  backend: channel
tenants:
  - tag: acme
    driver: sqlite3
    dsn: ":memory:"
    default: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("COURSETRACE_SERVER_TIMEOUT", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000 from file", cfg.Server.Port)
	}
	if cfg.Server.Timeout != 45*time.Second {
		t.Errorf("timeout = %s, want 45s from env", cfg.Server.Timeout)
	}
	if len(cfg.Tenants) != 1 || cfg.Tenants[0].Tag != "acme" {
		t.Errorf("tenants = %+v, want acme", cfg.Tenants)
	}
	// Untouched sections keep their defaults.
	if cfg.Queue.NATS.DurableName != "coursetrace" {
		t.Errorf("durable name = %q, want default", cfg.Queue.NATS.DurableName)
	}
}
