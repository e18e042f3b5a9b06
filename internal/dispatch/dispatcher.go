// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package dispatch

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/coursetrace/coursetrace/internal/event"
	"github.com/coursetrace/coursetrace/internal/logging"
	"github.com/coursetrace/coursetrace/internal/metrics"
	"github.com/coursetrace/coursetrace/internal/queue"
	"github.com/coursetrace/coursetrace/internal/tenant"
	"github.com/coursetrace/coursetrace/internal/validation"
)

// Runner executes a job in its tenant context. Implemented by the
// executor; injected here so the synchronous path and the queue path run
// the exact same code.
type Runner interface {
	Run(ctx context.Context, t *tenant.Tenant, job *Job) error
}

// Options modify how one event is processed.
type Options struct {
	// Immediate forces synchronous execution in the caller's tenant
	// context, bypassing the queue.
	Immediate bool

	// Queue overrides the event's default category.
	Queue event.Category
}

// Dispatcher is the write-path entry point: admission validation, tenant
// routing, and the synchronous/asynchronous execution decision.
type Dispatcher struct {
	validator *validation.Validator
	resolver  *tenant.Resolver
	publisher message.Publisher
	runner    Runner
	depth     *queue.DepthTracker
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(v *validation.Validator, r *tenant.Resolver, pub message.Publisher, runner Runner, depth *queue.DepthTracker) *Dispatcher {
	return &Dispatcher{
		validator: v,
		resolver:  r,
		publisher: pub,
		runner:    runner,
		depth:     depth,
	}
}

// Process admits, routes and dispatches one event. This is the
// consumer-side contract the host platform's lifecycle notifications call.
//
// Behavior:
//   - validation failure (Unrecoverable): the event is logged and
//     permanently dropped; Process returns nil since malformed host data
//     is not a caller error.
//   - no tenant resolvable: logged at info and silently dropped, the
//     site does not participate in analytics.
//   - Immediate option or a priority event kind: the record function runs
//     synchronously in the caller's tenant context and failures propagate
//     to the caller.
//   - otherwise: a Job carrying the tenant tag and the durable target id
//     is appended to the category queue; failures after this point are
//     isolated to the worker.
func (d *Dispatcher) Process(ctx context.Context, e *event.Event, opts Options) error {
	if err := d.validator.Validate(ctx, e, e.TargetID); err != nil {
		if validation.IsUnrecoverable(err) {
			logging.Warn().
				Err(err).
				Str("kind", string(e.Kind)).
				Str("event_id", e.EventID).
				Msg("event dropped at admission")
			metrics.RecordRejected(string(e.Kind), "unrecoverable")
			return nil
		}
		// Transient (host unreachable): surface to the producer, which
		// owns redelivery at this boundary.
		return fmt.Errorf("admit event %s: %w", e.EventID, err)
	}

	t := d.resolver.Resolve(e.SiteTags)
	if t == nil {
		logging.Info().
			Strs("candidates", e.SiteTags).
			Str("event_id", e.EventID).
			Msg("no analytics tenant for event, dropping")
		metrics.RecordRejected(string(e.Kind), "no_tenant")
		return nil
	}

	metrics.RecordAdmitted(string(e.Kind))

	job := NewJob(t.Tag, e)
	if opts.Queue != "" {
		job.Queue = string(opts.Queue)
	}

	if opts.Immediate || e.Priority() {
		// Time-sensitive: must run before the host can garbage-collect
		// the referenced object id. Failures propagate to the caller.
		return d.runner.Run(ctx, t, job)
	}

	payload, err := job.Marshal()
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := d.publisher.Publish(queue.Topic(event.Category(job.Queue)), msg); err != nil {
		return fmt.Errorf("enqueue job for %s: %w", t.Tag, err)
	}

	d.depth.Inc(job.Queue)
	metrics.RecordPublished(job.Queue)

	logging.Debug().
		Str("queue", job.Queue).
		Str("tenant", t.Tag).
		Str("op", job.Op).
		Str("event_id", e.EventID).
		Msg("job enqueued")
	return nil
}
