// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

// Package host is the boundary to the learning platform that produces
// events. The platform owns object identity: Coursetrace only ever holds
// durable reference ids, never live object handles, and must tolerate
// objects vanishing between event production and job execution.
package host

import (
	"context"
	"errors"
	"sync"
)

// ErrObjectGone is returned when a previously valid object id no longer
// resolves on the host platform. This is the expected outcome of deletion
// races, not a bug: callers drop the work item without retrying.
var ErrObjectGone = errors.New("host object no longer resolvable")

// ErrUnknownActor is returned when an acting user id does not resolve to a
// known platform entity.
var ErrUnknownActor = errors.New("unknown actor")

// ObjectType classifies host objects well enough for record routing.
type ObjectType string

// Host object types.
const (
	ObjectUser     ObjectType = "user"
	ObjectResource ObjectType = "resource"
	ObjectVideo    ObjectType = "video"
	ObjectPage     ObjectType = "page"
	ObjectNote     ObjectType = "note"
	ObjectTopic    ObjectType = "topic"
)

// Object is a resolved host platform object.
type Object struct {
	ID    int64
	Type  ObjectType
	Title string

	// MaxDuration is the known maximum duration in seconds for playable
	// objects, 0 when unknown or not applicable.
	MaxDuration int

	// Children are the ids of contained child objects (pages of a paged
	// container), in display order.
	Children []int64
}

// Identifier resolves between host objects and their durable ids.
//
// It replaces the host's monkey-patchable global id lookups with an
// injected strategy so tests supply a deterministic fake.
type Identifier interface {
	// IDFor returns the durable id for an object.
	IDFor(ctx context.Context, obj *Object) (int64, error)

	// ObjectFor resolves an id back to an object. Returns ErrObjectGone
	// when the id no longer resolves.
	ObjectFor(ctx context.Context, id int64) (*Object, error)

	// ActorExists reports whether a user id resolves to a known entity.
	ActorExists(ctx context.Context, userID int64) (bool, error)
}

// StaticIdentifier is an in-memory Identifier for tests and standalone
// deployments. Objects and actors are registered up front; removing an
// object makes subsequent lookups return ErrObjectGone.
type StaticIdentifier struct {
	mu      sync.RWMutex
	objects map[int64]*Object
	actors  map[int64]bool
}

// NewStaticIdentifier creates an empty StaticIdentifier.
func NewStaticIdentifier() *StaticIdentifier {
	return &StaticIdentifier{
		objects: make(map[int64]*Object),
		actors:  make(map[int64]bool),
	}
}

// AddObject registers an object under its id.
func (s *StaticIdentifier) AddObject(obj *Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[obj.ID] = obj
}

// RemoveObject unregisters an object, simulating host-side deletion.
func (s *StaticIdentifier) RemoveObject(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, id)
}

// AddActor registers a known user id.
func (s *StaticIdentifier) AddActor(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actors[userID] = true
}

// IDFor implements Identifier.
func (s *StaticIdentifier) IDFor(_ context.Context, obj *Object) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[obj.ID]; !ok {
		return 0, ErrObjectGone
	}
	return obj.ID, nil
}

// ObjectFor implements Identifier.
func (s *StaticIdentifier) ObjectFor(_ context.Context, id int64) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[id]
	if !ok {
		return nil, ErrObjectGone
	}
	return obj, nil
}

// ActorExists implements Identifier.
func (s *StaticIdentifier) ActorExists(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actors[userID], nil
}
