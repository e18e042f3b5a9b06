// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/coursetrace/coursetrace/internal/logging"
)

// ClientConfig holds configuration for the host platform client.
type ClientConfig struct {
	// BaseURL is the host platform API root, e.g. "https://lms.example.com/api".
	BaseURL string

	// Token is the bearer token for host API access.
	Token string

	// Timeout is the per-request timeout.
	// Default: 10s
	Timeout time.Duration

	// BreakerFailureThreshold is the consecutive-failure count that opens
	// the circuit. Default: 5
	BreakerFailureThreshold uint32

	// BreakerTimeout is how long the circuit stays open before probing.
	// Default: 30s
	BreakerTimeout time.Duration
}

// DefaultClientConfig returns production defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:                 10 * time.Second,
		BreakerFailureThreshold: 5,
		BreakerTimeout:          30 * time.Second,
	}
}

// Client is an HTTP-backed Identifier against the host platform.
//
// Lookups run through a circuit breaker: when the host is down, validation
// fails fast as retryable instead of stacking up blocked workers. A 404 or
// 410 from the host is NOT a breaker failure; it maps to ErrObjectGone.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Object]
}

// NewClient creates a host platform client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("host client: base URL required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "host-identifier",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("host client circuit state changed")
		},
		// A vanished object is an answer from a healthy host, not a failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrObjectGone)
		},
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[*Object](settings),
	}, nil
}

// objectPayload is the host API wire form for an object.
type objectPayload struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	MaxDuration int     `json:"max_duration"`
	Children    []int64 `json:"children"`
}

// ObjectFor implements Identifier.
func (c *Client) ObjectFor(ctx context.Context, id int64) (*Object, error) {
	return c.breaker.Execute(func() (*Object, error) {
		return c.fetchObject(ctx, id)
	})
}

// IDFor implements Identifier. The host object already carries its durable
// id; the call verifies it still resolves.
func (c *Client) IDFor(ctx context.Context, obj *Object) (int64, error) {
	resolved, err := c.ObjectFor(ctx, obj.ID)
	if err != nil {
		return 0, err
	}
	return resolved.ID, nil
}

// ActorExists implements Identifier.
func (c *Client) ActorExists(ctx context.Context, userID int64) (bool, error) {
	_, err := c.breaker.Execute(func() (*Object, error) {
		return c.fetch(ctx, fmt.Sprintf("%s/users/%d", c.cfg.BaseURL, userID))
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrObjectGone):
		return false, nil
	default:
		return false, err
	}
}

func (c *Client) fetchObject(ctx context.Context, id int64) (*Object, error) {
	return c.fetch(ctx, fmt.Sprintf("%s/objects/%d", c.cfg.BaseURL, id))
}

func (c *Client) fetch(ctx context.Context, url string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("host request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotFound, http.StatusGone:
		return nil, ErrObjectGone
	default:
		return nil, fmt.Errorf("host returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read host response: %w", err)
	}

	var payload objectPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode host response: %w", err)
	}

	return &Object{
		ID:          payload.ID,
		Type:        ObjectType(payload.Type),
		Title:       payload.Title,
		MaxDuration: payload.MaxDuration,
		Children:    payload.Children,
	}, nil
}

// BreakerState returns the current circuit state for monitoring.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
