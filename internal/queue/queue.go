// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

// Package queue binds the pipeline to its job queue collaborator.
//
// Queues are named per event category and provide at-least-once delivery
// with FIFO order within a category; there is no cross-category ordering
// guarantee, and redelivery after a failure may reorder relative to newly
// enqueued jobs. Two backends are supported: the in-process Watermill
// GoChannel (default) and NATS JetStream for durable multi-instance
// deployments.
package queue

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/coursetrace/coursetrace/internal/event"
	"github.com/coursetrace/coursetrace/internal/logging"
)

// Backend selects the queue transport.
type Backend string

// Supported backends.
const (
	BackendChannel Backend = "channel"
	BackendNATS    Backend = "nats"
)

// Topic returns the queue topic for a category, e.g. "jobs.views".
func Topic(category event.Category) string {
	return "jobs." + string(category)
}

// categoryOf is the inverse of Topic.
func categoryOf(topic string) string {
	return strings.TrimPrefix(topic, "jobs.")
}

// PoisonTopic is where jobs land after the retry policy gives up.
const PoisonTopic = "jobs.poison"

// Config holds queue configuration.
type Config struct {
	// Backend is "channel" or "nats".
	Backend Backend

	// BufferSize is the per-topic buffer for the channel backend.
	// Default: 1024
	BufferSize int64

	// NATS holds JetStream settings, used when Backend is "nats".
	NATS NATSConfig

	// Retry policy applied by the router on handler failure. This is the
	// queue's retry-on-exception behavior; the executor itself never
	// retries.
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// CloseTimeout is how long to wait for in-flight handlers on close.
	CloseTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Backend:              BackendChannel,
		BufferSize:           1024,
		NATS:                 DefaultNATSConfig(),
		RetryMaxRetries:      5,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     time.Minute,
		RetryMultiplier:      2.0,
		CloseTimeout:         30 * time.Second,
	}
}

// PubSub pairs the publisher and subscriber halves of one backend.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// NewPubSub constructs the configured backend.
func NewPubSub(cfg Config) (*PubSub, error) {
	switch cfg.Backend {
	case "", BackendChannel:
		buffer := cfg.BufferSize
		if buffer == 0 {
			buffer = 1024
		}
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: buffer,
		}, logging.NewWatermillAdapter())
		return &PubSub{Publisher: ch, Subscriber: ch}, nil

	case BackendNATS:
		pub, err := NewNATSPublisher(cfg.NATS)
		if err != nil {
			return nil, err
		}
		sub, err := NewNATSSubscriber(cfg.NATS)
		if err != nil {
			_ = pub.Close()
			return nil, err
		}
		return &PubSub{Publisher: pub, Subscriber: sub}, nil

	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

// Close closes both halves.
func (ps *PubSub) Close() error {
	err := ps.Publisher.Close()
	if sub, ok := ps.Subscriber.(interface{ Close() error }); ok {
		if serr := sub.Close(); err == nil {
			err = serr
		}
	}
	return err
}

// DepthTracker reports published-minus-acknowledged counts per queue. The
// channel backend exposes no queue length, so depth is maintained at the
// boundary: the dispatcher counts up, the executor counts down.
type DepthTracker struct {
	mu     sync.Mutex
	depths map[string]int64
}

// NewDepthTracker creates an empty tracker.
func NewDepthTracker() *DepthTracker {
	return &DepthTracker{depths: make(map[string]int64)}
}

// Inc records a published job.
func (d *DepthTracker) Inc(queue string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.depths[queue]++
}

// Dec records an acknowledged job.
func (d *DepthTracker) Dec(queue string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.depths[queue] > 0 {
		d.depths[queue]--
	}
}

// Len returns the depth of one queue.
func (d *DepthTracker) Len(queue string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.depths[queue]
}

// Depths returns a snapshot of all queue depths.
func (d *DepthTracker) Depths() map[string]int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int64, len(d.depths))
	for q, n := range d.depths {
		out[q] = n
	}
	return out
}
