// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

// Package executor consumes jobs from the category queues and applies
// them to tenant stores.
//
// Per-job state machine:
//
//	Dequeued → TenantBound → Executing → {Committed | Dropped | Retryable-Failed}
//
// Dropped is terminal and acknowledged: a deprovisioned tenant or a target
// that vanished mid-flight is the expected outcome of races against the
// host platform, not a bug. Anything else propagates to the queue's retry
// policy; the executor performs no retry logic of its own.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/coursetrace/coursetrace/internal/dispatch"
	"github.com/coursetrace/coursetrace/internal/event"
	"github.com/coursetrace/coursetrace/internal/host"
	"github.com/coursetrace/coursetrace/internal/logging"
	"github.com/coursetrace/coursetrace/internal/metrics"
	"github.com/coursetrace/coursetrace/internal/queue"
	"github.com/coursetrace/coursetrace/internal/store"
	"github.com/coursetrace/coursetrace/internal/tenant"
	"github.com/coursetrace/coursetrace/internal/validation"
)

// Executor binds dequeued jobs to their tenant and runs the requested
// record function inside one transaction.
type Executor struct {
	registry *tenant.Registry
	ids      host.Identifier
	depth    *queue.DepthTracker
}

// New creates an executor.
func New(registry *tenant.Registry, ids host.Identifier, depth *queue.DepthTracker) *Executor {
	return &Executor{registry: registry, ids: ids, depth: depth}
}

// Handler adapts the executor to a queue message handler. Returning nil
// acknowledges the message (Committed or Dropped); returning an error
// hands it to the retry policy.
func (ex *Executor) Handler(msg *message.Message) error {
	start := time.Now()

	job, err := dispatch.UnmarshalJob(msg.Payload)
	if err != nil {
		// Malformed payloads can never succeed; ack and drop.
		logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("undecodable job dropped")
		return nil
	}

	ctx := context.Background()
	if msgCtx := msg.Context(); msgCtx != nil {
		ctx = msgCtx
	}

	// TenantBound: resolve fresh from the registry for every job. No
	// tenant state leaks between jobs on a worker goroutine.
	db, ok := ex.registry.Lookup(job.TenantTag)
	if !ok {
		logging.Info().
			Str("tenant", job.TenantTag).
			Str("queue", job.Queue).
			Msg("tenant deprovisioned, job dropped")
		ex.depth.Dec(job.Queue)
		metrics.RecordDropped(job.Queue, "no_tenant")
		return nil
	}

	err = ex.Run(ctx, &tenant.Tenant{Tag: job.TenantTag, DB: db}, job)
	switch {
	case err == nil:
		ex.depth.Dec(job.Queue)
		metrics.RecordProcessed(job.Queue, time.Since(start))
		return nil
	case errors.Is(err, host.ErrObjectGone):
		logging.Info().
			Str("tenant", job.TenantTag).
			Int64("target_id", job.TargetID).
			Str("op", job.Op).
			Msg("target vanished mid-flight, job dropped")
		ex.depth.Dec(job.Queue)
		metrics.RecordDropped(job.Queue, "target_gone")
		return nil
	case validation.IsUnrecoverable(err):
		logging.Warn().
			Err(err).
			Str("tenant", job.TenantTag).
			Str("op", job.Op).
			Msg("unrecoverable job dropped")
		ex.depth.Dec(job.Queue)
		metrics.RecordDropped(job.Queue, "unrecoverable")
		return nil
	default:
		metrics.RecordFailed(job.Queue)
		return err
	}
}

// Run executes a job in its tenant context: one transaction, committed on
// success. This is also the synchronous path used for priority events.
func (ex *Executor) Run(ctx context.Context, t *tenant.Tenant, job *dispatch.Job) error {
	return t.DB.WithTx(ctx, func(tx *sql.Tx) error {
		return ex.apply(ctx, tx, job)
	})
}

// apply dispatches the record function. The set of operations is closed:
// every case maps to the generic upsert with a kind-specific natural key.
func (ex *Executor) apply(ctx context.Context, tx *sql.Tx, job *dispatch.Job) error {
	e := job.Event
	e.Normalize()

	switch job.Op {
	case dispatch.OpRemove:
		n, err := store.SoftDeleteAll(ctx, tx, job.TargetID)
		if err != nil {
			return err
		}
		logging.Debug().
			Int64("target_id", job.TargetID).
			Int64("records", n).
			Msg("target records soft-deleted")
		return nil

	case string(event.KindResourceView), string(event.KindVideoView):
		return ex.recordView(ctx, tx, job)

	case string(event.KindSubmission), string(event.KindForumPost), string(event.KindSocialAction):
		return ex.recordCreation(ctx, tx, job)

	default:
		return &validation.UnrecoverableError{Reason: fmt.Sprintf("unknown operation %q", job.Op)}
	}
}

// recordView upserts a duration-class record for a view event.
func (ex *Executor) recordView(ctx context.Context, tx *sql.Tx, job *dispatch.Job) error {
	e := job.Event

	// Re-resolve the target: the object may have been deleted between
	// admission and execution. ErrObjectGone here is the legitimate
	// deletion race and drops the job upstream.
	obj, err := ex.ids.ObjectFor(ctx, job.TargetID)
	if err != nil {
		return err
	}

	dims, err := ex.ensureDimensions(ctx, tx, e)
	if err != nil {
		return err
	}

	key := store.NaturalKey{UserID: dims.userID, TargetID: job.TargetID, OccurredAt: e.Timestamp}
	_, _, err = store.Upsert(ctx, tx, e.Kind, key, func() (*store.Record, error) {
		rec := &store.Record{
			Kind:          e.Kind,
			UserID:        dims.userID,
			SessionID:     dims.sessionID,
			RootContextID: dims.rootContextID,
			TargetID:      &job.TargetID,
			OccurredAt:    e.Timestamp,
			Duration:      e.Duration,
		}
		if e.Kind == event.KindVideoView {
			if e.Duration != nil {
				end := e.Timestamp.Add(time.Duration(*e.Duration) * time.Second)
				rec.EndTime = &end
			}
			if e.MaxDuration != nil {
				rec.MaxDuration = e.MaxDuration
			} else if obj.MaxDuration > 0 {
				max := obj.MaxDuration
				rec.MaxDuration = &max
			}
		}
		return rec, nil
	})
	return err
}

// recordCreation upserts a creation-class record. Existence is terminal:
// replays are discarded by the upsert policy.
func (ex *Executor) recordCreation(ctx context.Context, tx *sql.Tx, job *dispatch.Job) error {
	e := job.Event

	if _, err := ex.ids.ObjectFor(ctx, job.TargetID); err != nil {
		return err
	}

	dims, err := ex.ensureDimensions(ctx, tx, e)
	if err != nil {
		return err
	}

	key := store.NaturalKey{UserID: dims.userID, TargetID: job.TargetID, OccurredAt: e.Timestamp}
	_, _, err = store.Upsert(ctx, tx, e.Kind, key, func() (*store.Record, error) {
		return &store.Record{
			Kind:          e.Kind,
			UserID:        dims.userID,
			SessionID:     dims.sessionID,
			RootContextID: dims.rootContextID,
			TargetID:      &job.TargetID,
			OccurredAt:    e.Timestamp,
		}, nil
	})
	return err
}

// dimensionIDs are the internal dimension keys for one record.
type dimensionIDs struct {
	userID        uuid.UUID
	sessionID     *uuid.UUID
	rootContextID *uuid.UUID
}

// ensureDimensions find-or-creates the record's dimension rows.
func (ex *Executor) ensureDimensions(ctx context.Context, tx *sql.Tx, e *event.Event) (dimensionIDs, error) {
	var dims dimensionIDs

	userID, err := store.EnsureUser(ctx, tx, e.Actor.ExternalID, e.Actor.Username)
	if err != nil {
		return dims, err
	}
	dims.userID = userID

	if e.SessionTag != "" {
		sid, err := store.EnsureSession(ctx, tx, e.SessionTag, userID, e.Timestamp)
		if err != nil {
			return dims, err
		}
		dims.sessionID = &sid
	}

	if root, ok := e.RootContext(); ok {
		rid, err := store.EnsureRootContext(ctx, tx, root.ID, root.Type)
		if err != nil {
			return dims, err
		}
		dims.rootContextID = &rid
	}

	return dims, nil
}
