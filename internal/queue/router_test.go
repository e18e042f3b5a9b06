// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/coursetrace/coursetrace/internal/event"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BufferSize = 16
	cfg.RetryMaxRetries = 2
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	cfg.CloseTimeout = 5 * time.Second
	return cfg
}

func startRouter(t *testing.T, router *Router) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := router.Run(ctx); err != nil {
			t.Errorf("router run: %v", err)
		}
	}()
	select {
	case <-router.Running():
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("router did not start")
	}
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestRouterDeliversToHandler(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	pubsub, err := NewPubSub(cfg)
	if err != nil {
		t.Fatalf("new pubsub: %v", err)
	}
	t.Cleanup(func() { _ = pubsub.Close() })

	router, err := NewRouter(cfg, pubsub, NewDepthTracker())
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	received := make(chan string, 1)
	router.AddHandler("record-views", Topic(event.CategoryViews), func(msg *message.Message) error {
		received <- msg.UUID
		return nil
	})

	startRouter(t, router)

	sent := message.NewMessage(watermill.NewUUID(), []byte("{}"))
	if err := pubsub.Publisher.Publish(Topic(event.CategoryViews), sent); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case uuid := <-received:
		if uuid != sent.UUID {
			t.Errorf("handled uuid = %s, want %s", uuid, sent.UUID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler never received the job")
	}
}

// A handler that keeps failing must be retried the configured number of
// times and then routed to the poison topic instead of blocking the
// category queue.
func TestRouterRetriesThenPoisons(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	pubsub, err := NewPubSub(cfg)
	if err != nil {
		t.Fatalf("new pubsub: %v", err)
	}
	t.Cleanup(func() { _ = pubsub.Close() })

	depth := NewDepthTracker()
	router, err := NewRouter(cfg, pubsub, depth)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	var attempts atomic.Int64
	router.AddHandler("record-views", Topic(event.CategoryViews), func(msg *message.Message) error {
		attempts.Add(1)
		return errors.New("store unavailable")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	poisoned, err := pubsub.Subscriber.Subscribe(ctx, PoisonTopic)
	if err != nil {
		t.Fatalf("subscribe poison: %v", err)
	}

	startRouter(t, router)

	sent := message.NewMessage(watermill.NewUUID(), []byte("{}"))
	if err := pubsub.Publisher.Publish(Topic(event.CategoryViews), sent); err != nil {
		t.Fatalf("publish: %v", err)
	}
	depth.Inc(string(event.CategoryViews))

	select {
	case msg := <-poisoned:
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("job never reached the poison topic")
	}

	// 1 initial attempt + RetryMaxRetries redeliveries.
	if got := attempts.Load(); got != int64(cfg.RetryMaxRetries)+1 {
		t.Errorf("handler attempts = %d, want %d", got, cfg.RetryMaxRetries+1)
	}

	// The job left its category queue when it was poisoned; the backlog
	// operators see must not count it forever.
	if got := depth.Len(string(event.CategoryViews)); got != 0 {
		t.Errorf("views depth after poisoning = %d, want 0", got)
	}
}
