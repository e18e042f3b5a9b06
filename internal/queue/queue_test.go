// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/coursetrace/coursetrace/internal/event"
)

func TestTopicNaming(t *testing.T) {
	t.Parallel()
	tests := []struct {
		category event.Category
		want     string
	}{
		{event.CategoryViews, "jobs.views"},
		{event.CategorySubmissions, "jobs.submissions"},
		{event.CategorySocial, "jobs.social"},
		{event.CategoryLifecycle, "jobs.lifecycle"},
	}
	for _, tt := range tests {
		if got := Topic(tt.category); got != tt.want {
			t.Errorf("Topic(%s) = %q, want %q", tt.category, got, tt.want)
		}
	}
}

func TestDepthTracker(t *testing.T) {
	t.Parallel()
	d := NewDepthTracker()

	d.Inc("views")
	d.Inc("views")
	d.Inc("social")
	d.Dec("views")

	if got := d.Len("views"); got != 1 {
		t.Errorf("Len(views) = %d, want 1", got)
	}
	if got := d.Len("social"); got != 1 {
		t.Errorf("Len(social) = %d, want 1", got)
	}
	if got := d.Len("lifecycle"); got != 0 {
		t.Errorf("Len(lifecycle) = %d, want 0", got)
	}

	depths := d.Depths()
	if depths["views"] != 1 || depths["social"] != 1 {
		t.Errorf("Depths() = %v", depths)
	}
}

func TestDepthTrackerNeverNegative(t *testing.T) {
	t.Parallel()
	d := NewDepthTracker()
	d.Dec("views")
	if got := d.Len("views"); got != 0 {
		t.Errorf("Len after stray Dec = %d, want 0", got)
	}
}

func TestChannelBackendDelivers(t *testing.T) {
	t.Parallel()

	pubsub, err := NewPubSub(Config{Backend: BackendChannel, BufferSize: 16})
	if err != nil {
		t.Fatalf("new pubsub: %v", err)
	}
	t.Cleanup(func() { _ = pubsub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := pubsub.Subscriber.Subscribe(ctx, Topic(event.CategoryViews))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sent := message.NewMessage(watermill.NewUUID(), []byte(`{"op":"resource_view"}`))
	if err := pubsub.Publisher.Publish(Topic(event.CategoryViews), sent); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-msgs:
		if got.UUID != sent.UUID {
			t.Errorf("received uuid = %s, want %s", got.UUID, sent.UUID)
		}
		got.Ack()
	case <-ctx.Done():
		t.Fatal("no message delivered before timeout")
	}
}

func TestNewPubSubUnknownBackend(t *testing.T) {
	t.Parallel()
	if _, err := NewPubSub(Config{Backend: Backend("rabbit")}); err == nil {
		t.Error("NewPubSub(rabbit) = nil error, want error")
	}
}
