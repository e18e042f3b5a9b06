// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package queue

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/coursetrace/coursetrace/internal/logging"
	"github.com/coursetrace/coursetrace/internal/metrics"
)

// Router wraps the Watermill router with the middleware stack that makes
// up the queue's delivery contract:
//
//   - Recoverer turns handler panics into errors;
//   - Retry redelivers failed jobs with exponential backoff; this is the
//     "retry-on-exception" policy the executor relies on instead of
//     retrying itself;
//   - PoisonQueue routes jobs that exhaust their retries to PoisonTopic
//     instead of blocking the category.
//
// A handler returning nil acknowledges the job (Committed or Dropped); a
// returned error hands it back to the retry policy.
type Router struct {
	router *message.Router
	pubsub *PubSub
	config Config
}

// poisonPublisher settles accounting for jobs the retry policy gave up
// on. The poisoned copy carries its originating topic in metadata, so the
// source queue's depth is released once the copy is safely published.
type poisonPublisher struct {
	pub   message.Publisher
	depth *DepthTracker
}

func (p *poisonPublisher) Publish(topic string, msgs ...*message.Message) error {
	if err := p.pub.Publish(topic, msgs...); err != nil {
		return err
	}
	for _, msg := range msgs {
		source := categoryOf(msg.Metadata.Get(middleware.PoisonedTopicKey))
		if source != "" && p.depth != nil {
			p.depth.Dec(source)
		}
		metrics.RecordPoisoned(source)
	}
	return nil
}

// Close is a no-op; the underlying publisher is owned by the PubSub.
func (p *poisonPublisher) Close() error { return nil }

// NewRouter builds a router over the backend.
func NewRouter(cfg Config, pubsub *PubSub, depth *DepthTracker) (*Router, error) {
	if pubsub == nil {
		return nil, fmt.Errorf("queue: pubsub required")
	}

	logger := logging.NewWatermillAdapter()

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.CloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)

	poison, err := middleware.PoisonQueue(&poisonPublisher{pub: pubsub.Publisher, depth: depth}, PoisonTopic)
	if err != nil {
		return nil, fmt.Errorf("create poison queue: %w", err)
	}
	router.AddMiddleware(poison)

	router.AddMiddleware(middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}.Middleware)

	return &Router{router: router, pubsub: pubsub, config: cfg}, nil
}

// AddHandler subscribes a handler to one named queue.
func (r *Router) AddHandler(name, topic string, handler message.NoPublishHandlerFunc) {
	r.router.AddNoPublisherHandler(name, topic, r.pubsub.Subscriber, handler)
}

// Run processes jobs until the context is canceled. Blocks.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running returns a channel closed once the router has started.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// Close shuts the router down, waiting up to CloseTimeout for in-flight
// handlers.
func (r *Router) Close() error {
	return r.router.Close()
}
