// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}

	switch c.Queue.Backend {
	case "channel", "nats":
	default:
		return fmt.Errorf("queue.backend must be \"channel\" or \"nats\", got %q", c.Queue.Backend)
	}
	if c.Queue.BufferSize < 0 {
		return fmt.Errorf("queue.buffer_size must be non-negative, got %d", c.Queue.BufferSize)
	}
	if c.Queue.RetryMaxRetries < 0 {
		return fmt.Errorf("queue.retry_max_retries must be non-negative, got %d", c.Queue.RetryMaxRetries)
	}
	if c.Queue.Backend == "nats" {
		if c.Queue.NATS.URL == "" {
			return fmt.Errorf("queue.nats.url is required when queue.backend is \"nats\"")
		}
		if c.Queue.NATS.SubscribersCount < 1 {
			return fmt.Errorf("queue.nats.subscribers_count must be at least 1, got %d", c.Queue.NATS.SubscribersCount)
		}
	}

	seen := make(map[string]bool, len(c.Tenants))
	for i, t := range c.Tenants {
		if t.Tag == "" {
			return fmt.Errorf("tenants[%d].tag is required", i)
		}
		if seen[t.Tag] {
			return fmt.Errorf("duplicate tenant tag %q", t.Tag)
		}
		seen[t.Tag] = true
		switch t.Driver {
		case "duckdb", "sqlite3":
		default:
			return fmt.Errorf("tenants[%d].driver must be \"duckdb\" or \"sqlite3\", got %q", i, t.Driver)
		}
		if t.DSN == "" {
			return fmt.Errorf("tenants[%d].dsn is required", i)
		}
	}

	if c.Host.URL != "" && !strings.HasPrefix(c.Host.URL, "http://") && !strings.HasPrefix(c.Host.URL, "https://") {
		return fmt.Errorf("host.url must be an http(s) URL, got %q", c.Host.URL)
	}
	if c.Host.Timeout <= 0 {
		return fmt.Errorf("host.timeout must be positive, got %s", c.Host.Timeout)
	}

	if c.API.RateLimitReqs < 0 {
		return fmt.Errorf("api.rate_limit_reqs must be non-negative, got %d", c.API.RateLimitReqs)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"console\", got %q", c.Logging.Format)
	}

	return nil
}

// DefaultTenantTags returns the tags marked default, in listed order.
func (c *Config) DefaultTenantTags() []string {
	var tags []string
	for _, t := range c.Tenants {
		if t.Default {
			tags = append(tags, t.Tag)
		}
	}
	return tags
}
