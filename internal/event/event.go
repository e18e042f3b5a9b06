// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

// Package event defines the transient learner-interaction event captured at
// the platform boundary. Events are constructed by a producer, validated,
// routed to a tenant, and discarded once the corresponding record is
// produced; they are never persisted verbatim.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind tags the category of learner interaction an event describes.
type Kind string

// Event kinds. This is a closed set: record functions dispatch over it with
// an exhaustive switch rather than a runtime registry.
const (
	// KindResourceView is a view of a single page or asset.
	KindResourceView Kind = "resource_view"
	// KindVideoView is a video play, carrying watched duration.
	KindVideoView Kind = "video_view"
	// KindSubmission is an assignment or quiz submission.
	KindSubmission Kind = "submission"
	// KindForumPost is a forum topic or comment creation.
	KindForumPost Kind = "forum_post"
	// KindSocialAction is a like, follow, bookmark or similar social act.
	KindSocialAction Kind = "social_action"
	// KindObjectRemoved signals a target object was deleted on the host
	// platform. Time-sensitive: it races against host id garbage collection.
	KindObjectRemoved Kind = "object_removed"
)

// Class describes how a Record kind resolves duplicate deliveries.
type Class int

const (
	// ClassDuration records accumulate a viewing duration; a later, larger
	// duration supersedes the stored one.
	ClassDuration Class = iota
	// ClassCreation records are terminal on first insert; later deliveries
	// for the same natural key are always duplicates.
	ClassCreation
	// ClassRemoval events soft-delete an existing record.
	ClassRemoval
)

// Class returns the upsert class for the kind.
func (k Kind) Class() Class {
	switch k {
	case KindResourceView, KindVideoView:
		return ClassDuration
	case KindObjectRemoved:
		return ClassRemoval
	default:
		return ClassCreation
	}
}

// Valid reports whether the kind is a member of the closed set.
func (k Kind) Valid() bool {
	switch k {
	case KindResourceView, KindVideoView, KindSubmission,
		KindForumPost, KindSocialAction, KindObjectRemoved:
		return true
	}
	return false
}

// Category names the queue an event kind is routed to. Categories give
// lightweight isolation: a backlog in one cannot starve another. There is
// no cross-category ordering guarantee.
type Category string

// Queue categories.
const (
	CategoryViews       Category = "views"
	CategorySubmissions Category = "submissions"
	CategorySocial      Category = "social"
	CategoryLifecycle   Category = "lifecycle"
)

// Categories lists every queue category. Consumers subscribe to all of them.
func Categories() []Category {
	return []Category{CategoryViews, CategorySubmissions, CategorySocial, CategoryLifecycle}
}

// Category returns the queue category for the event's kind.
func (e *Event) Category() Category {
	switch e.Kind {
	case KindResourceView, KindVideoView:
		return CategoryViews
	case KindSubmission:
		return CategorySubmissions
	case KindObjectRemoved:
		return CategoryLifecycle
	default:
		return CategorySocial
	}
}

// Actor identifies the acting user by host-platform id.
type Actor struct {
	ExternalID int64  `json:"external_id"`
	Username   string `json:"username,omitempty"`
}

// ContextSegment is one step of the containment path leading to the target,
// outermost first (course, then section, then page).
type ContextSegment struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// Event is the transient description of a user action.
//
// Duration semantics: nil means an "event start" marker (the action began
// but its length is not yet known), which is distinct from a zero-length
// completed event. Durations are whole seconds.
type Event struct {
	EventID   string    `json:"event_id"`
	Kind      Kind      `json:"kind"`
	Actor     Actor     `json:"actor"`
	TargetID  int64     `json:"target_id"`
	Timestamp time.Time `json:"timestamp"`

	// Duration is seconds spent, nil for a start marker.
	Duration *int `json:"duration,omitempty"`

	// MaxDuration is the target's known maximum duration in seconds
	// (video length), when the producer knows it.
	MaxDuration *int `json:"max_duration,omitempty"`

	// SessionTag is the host session identifier, when known.
	SessionTag string `json:"session_tag,omitempty"`

	// Context is the containment path to the target, outermost first.
	Context []ContextSegment `json:"context,omitempty"`

	// SiteTags are candidate tenant names in resolution order, derived from
	// the event's originating context.
	SiteTags []string `json:"site_tags,omitempty"`
}

// New creates an event with a unique id and a second-truncated UTC timestamp.
func New(kind Kind) *Event {
	return &Event{
		EventID:   uuid.New().String(),
		Kind:      kind,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
}

// Normalize truncates the timestamp to whole-second UTC precision.
// Sub-second deltas are meaningless to the store and would break
// natural-key equality across duplicate deliveries.
func (e *Event) Normalize() {
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Second)
}

// Priority reports whether the event must run synchronously, bypassing the
// queue. Removal events race against the host garbage-collecting object ids.
func (e *Event) Priority() bool {
	return e.Kind == KindObjectRemoved
}

// RootContext returns the outermost containment segment (the course or
// entity the record is scoped under), or false when the path is empty.
func (e *Event) RootContext() (ContextSegment, bool) {
	if len(e.Context) == 0 {
		return ContextSegment{}, false
	}
	return e.Context[0], true
}

// Validate checks required fields and returns a FieldError on failure.
func (e *Event) Validate() error {
	if e.EventID == "" {
		return &FieldError{Field: "event_id", Message: "required"}
	}
	if !e.Kind.Valid() {
		return &FieldError{Field: "kind", Message: "unknown kind " + string(e.Kind)}
	}
	if e.Actor.ExternalID == 0 {
		return &FieldError{Field: "actor.external_id", Message: "required"}
	}
	if e.TargetID == 0 {
		return &FieldError{Field: "target_id", Message: "required"}
	}
	if e.Timestamp.IsZero() {
		return &FieldError{Field: "timestamp", Message: "required"}
	}
	return nil
}

// FieldError represents a field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}
