// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

// Package progress synthesizes completion snapshots from committed records.
//
// Snapshots are computed on read and never persisted. A resource with zero
// events yields nil, not a zero snapshot: "no data" and "zero progress" are
// different answers and callers rely on the distinction.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/coursetrace/coursetrace/internal/host"
	"github.com/coursetrace/coursetrace/internal/metrics"
	"github.com/coursetrace/coursetrace/internal/store"
	"github.com/coursetrace/coursetrace/internal/tenant"
)

// Snapshot is a derived summary of one user's progress on one resource.
// The meaning of Absolute depends on the resource shape: seconds watched
// for leaves and videos, children-with-progress for containers.
type Snapshot struct {
	ResourceID int64 `json:"resource_id"`

	Absolute int `json:"absolute"`

	// MaxPossible is nil when no ceiling is known (plain leaf resources).
	MaxPossible *int `json:"max_possible,omitempty"`

	HasProgress bool `json:"has_progress"`

	// LastModified is when progress on this resource first appeared, for
	// leaves; for containers it is the latest such time across children.
	LastModified time.Time `json:"last_modified"`

	// MostRecentEndTime is the end time of the latest viewing by event
	// timestamp. Video resources only.
	MostRecentEndTime *time.Time `json:"most_recent_end_time,omitempty"`
}

// Aggregator computes snapshots against one tenant's committed records.
type Aggregator struct {
	ids host.Identifier
}

// NewAggregator creates an aggregator resolving resource shape through ids.
func NewAggregator(ids host.Identifier) *Aggregator {
	return &Aggregator{ids: ids}
}

// For computes the progress snapshot for a user on a resource, or nil when
// no events exist for it under the selected strategy.
func (a *Aggregator) For(ctx context.Context, t *tenant.Tenant, userExternalID, resourceID int64) (*Snapshot, error) {
	obj, err := a.ids.ObjectFor(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("resolve resource %d: %w", resourceID, err)
	}
	return a.forObject(ctx, t, userExternalID, obj, map[int64]bool{obj.ID: true})
}

func (a *Aggregator) forObject(ctx context.Context, t *tenant.Tenant, userExternalID int64, obj *host.Object, seen map[int64]bool) (*Snapshot, error) {
	switch {
	case len(obj.Children) > 0:
		return a.container(ctx, t, userExternalID, obj, seen)
	case obj.Type == host.ObjectVideo:
		return a.video(ctx, t, userExternalID, obj)
	default:
		return a.leaf(ctx, t, userExternalID, obj)
	}
}

// leaf sums durations over all view records for the resource. The first
// recorded contact establishes that progress exists; duration accumulates
// afterward, so LastModified is the earliest occurrence time.
func (a *Aggregator) leaf(ctx context.Context, t *tenant.Tenant, userExternalID int64, obj *host.Object) (*Snapshot, error) {
	records, err := t.DB.ViewsForTarget(ctx, userExternalID, obj.ID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	metrics.ProgressComputations.WithLabelValues("leaf").Inc()

	snap := &Snapshot{ResourceID: obj.ID, HasProgress: true}
	snap.LastModified = records[0].OccurredAt
	for _, rec := range records {
		if rec.Duration != nil {
			snap.Absolute += *rec.Duration
		}
		if rec.OccurredAt.Before(snap.LastModified) {
			snap.LastModified = rec.OccurredAt
		}
	}
	return snap, nil
}

// video is leaf plus the known media-length ceiling and the end time of
// the most recent viewing by event timestamp, not arrival order.
func (a *Aggregator) video(ctx context.Context, t *tenant.Tenant, userExternalID int64, obj *host.Object) (*Snapshot, error) {
	records, err := t.DB.ViewsForTarget(ctx, userExternalID, obj.ID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	metrics.ProgressComputations.WithLabelValues("video").Inc()

	snap := &Snapshot{ResourceID: obj.ID, HasProgress: true}
	snap.LastModified = records[0].OccurredAt

	var latest *store.Record
	maxKnown := 0
	for i := range records {
		rec := &records[i]
		if rec.Duration != nil {
			snap.Absolute += *rec.Duration
		}
		if rec.OccurredAt.Before(snap.LastModified) {
			snap.LastModified = rec.OccurredAt
		}
		if latest == nil || rec.OccurredAt.After(latest.OccurredAt) {
			latest = rec
		}
		if rec.MaxDuration != nil && *rec.MaxDuration > maxKnown {
			maxKnown = *rec.MaxDuration
		}
	}

	if obj.MaxDuration > 0 {
		maxKnown = obj.MaxDuration
	}
	if maxKnown > 0 {
		snap.MaxPossible = &maxKnown
	}
	if latest != nil && latest.EndTime != nil {
		end := *latest.EndTime
		snap.MostRecentEndTime = &end
	}
	return snap, nil
}

// container recurses over children and counts the ones with progress. The
// container itself participates as a pseudo-child: direct events on it add
// one, and the ceiling is always len(children)+1 so a container score reads
// the same whether or not its own page was opened.
func (a *Aggregator) container(ctx context.Context, t *tenant.Tenant, userExternalID int64, obj *host.Object, seen map[int64]bool) (*Snapshot, error) {
	snap := &Snapshot{ResourceID: obj.ID}
	maxPossible := len(obj.Children) + 1
	snap.MaxPossible = &maxPossible

	for _, childID := range obj.Children {
		// The host's containment graph is supposed to be a tree; a
		// repeated id means a cycle and unbounded recursion.
		if seen[childID] {
			return nil, fmt.Errorf("containment cycle: resource %d repeats under container %d", childID, obj.ID)
		}
		seen[childID] = true
		child, err := a.ids.ObjectFor(ctx, childID)
		if err != nil {
			return nil, fmt.Errorf("resolve child %d: %w", childID, err)
		}
		childSnap, err := a.forObject(ctx, t, userExternalID, child, seen)
		if err != nil {
			return nil, err
		}
		if childSnap == nil || !childSnap.HasProgress {
			continue
		}
		snap.Absolute++
		if childSnap.LastModified.After(snap.LastModified) {
			snap.LastModified = childSnap.LastModified
		}
	}

	// Direct events on the container page itself.
	direct, err := a.directLeaf(ctx, t, userExternalID, obj)
	if err != nil {
		return nil, err
	}
	if direct != nil {
		snap.Absolute++
		if direct.LastModified.After(snap.LastModified) {
			snap.LastModified = direct.LastModified
		}
	}

	if snap.Absolute == 0 {
		return nil, nil
	}
	snap.HasProgress = true
	metrics.ProgressComputations.WithLabelValues("container").Inc()
	return snap, nil
}

// directLeaf computes the container's own view records without recursing,
// so a container is never treated as its own child.
func (a *Aggregator) directLeaf(ctx context.Context, t *tenant.Tenant, userExternalID int64, obj *host.Object) (*Snapshot, error) {
	flat := *obj
	flat.Children = nil
	return a.leaf(ctx, t, userExternalID, &flat)
}
