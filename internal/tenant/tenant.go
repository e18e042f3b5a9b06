// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

// Package tenant maps site tags to isolated analytics databases.
//
// A tenant that has no registered database simply does not participate in
// analytics; events for it are silently dropped, which is a configuration
// fact rather than an error. Tenant handles are passed explicitly through
// every call; there is no ambient "current site" state, and a job
// re-resolves its tenant from the registry on every execution so a
// deprovisioned tenant is noticed at dequeue time.
package tenant

import (
	"fmt"
	"sort"
	"sync"

	"github.com/coursetrace/coursetrace/internal/store"
)

// Tenant is a resolved site: its tag plus its database handle.
type Tenant struct {
	Tag string
	DB  *store.DB
}

// Registry is the global map of tenant tag to database handle.
// One handle per tenant; re-registering a tag replaces the handle.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*store.DB
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*store.DB)}
}

// Register binds a tenant tag to its database handle.
func (r *Registry) Register(tag string, db *store.DB) error {
	if tag == "" {
		return fmt.Errorf("tenant: empty tag")
	}
	if db == nil {
		return fmt.Errorf("tenant: nil database for %q", tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[tag] = db
	return nil
}

// Deregister removes a tenant. In-flight jobs for it will be dropped at
// their next resolution.
func (r *Registry) Deregister(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, tag)
}

// Lookup returns the database handle for a tag.
func (r *Registry) Lookup(tag string) (*store.DB, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	db, ok := r.handles[tag]
	return db, ok
}

// Tags returns the registered tenant tags, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.handles))
	for tag := range r.handles {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Resolver turns an ordered list of candidate site tags into a tenant.
type Resolver struct {
	registry *Registry

	// DefaultTags is the caller-supplied fallback candidate list, tried
	// after the event's own candidates.
	DefaultTags []string
}

// NewResolver creates a resolver over the registry.
func NewResolver(registry *Registry, defaultTags ...string) *Resolver {
	return &Resolver{registry: registry, DefaultTags: defaultTags}
}

// Resolve returns the first candidate with a registered analytics
// database, falling back to the resolver's defaults. A nil result means
// no candidate participates in analytics and the event should be dropped
// silently.
func (r *Resolver) Resolve(candidates []string) *Tenant {
	for _, tag := range candidates {
		if db, ok := r.registry.Lookup(tag); ok {
			return &Tenant{Tag: tag, DB: db}
		}
	}
	for _, tag := range r.DefaultTags {
		if db, ok := r.registry.Lookup(tag); ok {
			return &Tenant{Tag: tag, DB: db}
		}
	}
	return nil
}
