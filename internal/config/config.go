// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

// Package config loads and validates the service configuration from
// layered sources: built-in defaults, an optional YAML file, then
// environment variables.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig   `koanf:"server"`
	Queue   QueueConfig    `koanf:"queue"`
	Tenants []TenantConfig `koanf:"tenants"`
	Host    HostConfig     `koanf:"host"`
	API     APIConfig      `koanf:"api"`
	Logging LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// QueueConfig configures the job queue backend and its retry policy.
type QueueConfig struct {
	// Backend selects the pubsub implementation: "channel" (in-process)
	// or "nats" (JetStream).
	Backend string `koanf:"backend"`

	BufferSize int `koanf:"buffer_size"`

	RetryMaxRetries      int           `koanf:"retry_max_retries"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval"`
	RetryMultiplier      float64       `koanf:"retry_multiplier"`
	CloseTimeout         time.Duration `koanf:"close_timeout"`

	NATS NATSConfig `koanf:"nats"`
}

// NATSConfig configures the JetStream backend when queue.backend is "nats".
type NATSConfig struct {
	URL              string        `koanf:"url"`
	DurableName      string        `koanf:"durable_name"`
	QueueGroup       string        `koanf:"queue_group"`
	SubscribersCount int           `koanf:"subscribers_count"`
	AckWait          time.Duration `koanf:"ack_wait"`
	MaxDeliver       int           `koanf:"max_deliver"`
	ConnectTimeout   time.Duration `koanf:"connect_timeout"`
}

// TenantConfig describes one tenant store. Default marks tags that absorb
// events carrying no registered site tag.
type TenantConfig struct {
	Tag     string `koanf:"tag"`
	Driver  string `koanf:"driver"`
	DSN     string `koanf:"dsn"`
	Default bool   `koanf:"default"`
}

// HostConfig configures the host platform client. When URL is empty the
// service runs standalone with the in-memory identifier.
type HostConfig struct {
	URL                     string        `koanf:"url"`
	Token                   string        `koanf:"token"`
	Timeout                 time.Duration `koanf:"timeout"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`
}

// APIConfig configures the ingestion API surface.
type APIConfig struct {
	// AuthToken is the static bearer token required on ingestion routes.
	// Empty disables authentication (local development only).
	AuthToken string `koanf:"auth_token"`

	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, applied before file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8457,
			Timeout: 30 * time.Second,
		},
		Queue: QueueConfig{
			Backend:              "channel",
			BufferSize:           1024,
			RetryMaxRetries:      3,
			RetryInitialInterval: 100 * time.Millisecond,
			RetryMaxInterval:     10 * time.Second,
			RetryMultiplier:      2.0,
			CloseTimeout:         30 * time.Second,
			NATS: NATSConfig{
				URL:              "nats://127.0.0.1:4222",
				DurableName:      "coursetrace",
				QueueGroup:       "recorders",
				SubscribersCount: 4,
				AckWait:          30 * time.Second,
				MaxDeliver:       10,
				ConnectTimeout:   5 * time.Second,
			},
		},
		Tenants: []TenantConfig{},
		Host: HostConfig{
			URL:                     "",
			Token:                   "",
			Timeout:                 10 * time.Second,
			BreakerFailureThreshold: 5,
			BreakerTimeout:          30 * time.Second,
		},
		API: APIConfig{
			AuthToken:       "",
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
