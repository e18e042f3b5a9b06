// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

// Package dispatch decides how an admitted event is executed: queued to
// its category for asynchronous processing, or run synchronously when the
// event is time-sensitive.
package dispatch

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/coursetrace/coursetrace/internal/event"
)

// Job is the durable, replay-safe unit of queued work derived from an
// Event. It carries only serializable state (the tenant tag and durable
// object-reference ids, never live handles) so it survives the producing
// process exiting. Applying the same job twice never duplicates state:
// execution lands in the idempotent upsert layer.
type Job struct {
	// Op is the record function identifier: the event kind for record
	// production, or "remove" for soft-deletion.
	Op string `json:"op"`

	// TenantTag names the tenant the job executes against. The executor
	// re-resolves the tag at dequeue time; jobs for deprovisioned tenants
	// are dropped.
	TenantTag string `json:"tenant_tag"`

	// TargetID is the durable host object reference.
	TargetID int64 `json:"target_id"`

	// Event is the originating event payload.
	Event *event.Event `json:"event"`

	// Queue is the named queue the job was appended to.
	Queue string `json:"queue"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// OpRemove is the soft-delete record function identifier.
const OpRemove = "remove"

// NewJob derives a job from an admitted event bound to a tenant.
func NewJob(tenantTag string, e *event.Event) *Job {
	op := string(e.Kind)
	if e.Kind == event.KindObjectRemoved {
		op = OpRemove
	}
	return &Job{
		Op:         op,
		TenantTag:  tenantTag,
		TargetID:   e.TargetID,
		Event:      e,
		Queue:      string(e.Category()),
		EnqueuedAt: time.Now().UTC().Truncate(time.Second),
	}
}

// Marshal encodes the job for queue transport.
func (j *Job) Marshal() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return data, nil
}

// UnmarshalJob decodes a job from queue transport.
func UnmarshalJob(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	if j.Event == nil {
		return nil, fmt.Errorf("job without event payload")
	}
	return &j, nil
}
