// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/coursetrace/coursetrace/internal/event"
	"github.com/coursetrace/coursetrace/internal/host"
)

func intPtr(n int) *int { return &n }

// flakyIdentifier simulates a host that is temporarily unreachable.
type flakyIdentifier struct {
	*host.StaticIdentifier
	objectErr error
}

func (f *flakyIdentifier) ObjectFor(ctx context.Context, id int64) (*host.Object, error) {
	if f.objectErr != nil {
		return nil, f.objectErr
	}
	return f.StaticIdentifier.ObjectFor(ctx, id)
}

func testEvent() *event.Event {
	e := event.New(event.KindResourceView)
	e.Actor = event.Actor{ExternalID: 101}
	e.TargetID = 42
	return e
}

func newIdentifier() *host.StaticIdentifier {
	ids := host.NewStaticIdentifier()
	ids.AddActor(101)
	ids.AddObject(&host.Object{ID: 42, Type: host.ObjectResource})
	return ids
}

func TestValidateAdmitsWellFormedEvent(t *testing.T) {
	t.Parallel()
	v := NewValidator(newIdentifier())
	if err := v.Validate(context.Background(), testEvent(), 42); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateMalformedEventIsUnrecoverable(t *testing.T) {
	t.Parallel()
	v := NewValidator(newIdentifier())

	e := testEvent()
	e.TargetID = 0
	err := v.Validate(context.Background(), e, 0)
	if !IsUnrecoverable(err) {
		t.Errorf("malformed event: err = %v, want unrecoverable", err)
	}
}

func TestValidateGoneTargetIsUnrecoverable(t *testing.T) {
	t.Parallel()
	ids := newIdentifier()
	ids.RemoveObject(42)
	v := NewValidator(ids)

	err := v.Validate(context.Background(), testEvent(), 42)
	if !IsUnrecoverable(err) {
		t.Errorf("gone target: err = %v, want unrecoverable", err)
	}
}

func TestValidateRemovalAdmitsGoneTarget(t *testing.T) {
	t.Parallel()
	ids := newIdentifier()
	ids.RemoveObject(42)
	v := NewValidator(ids)

	// A removal notification races against host garbage collection; the
	// target being already gone is its normal case.
	e := event.New(event.KindObjectRemoved)
	e.Actor = event.Actor{ExternalID: 101}
	e.TargetID = 42
	if err := v.Validate(context.Background(), e, 42); err != nil {
		t.Errorf("Validate(removal, gone target) = %v, want nil", err)
	}
}

func TestValidateHostOutageIsTransient(t *testing.T) {
	t.Parallel()
	outage := errors.New("connection refused")
	v := NewValidator(&flakyIdentifier{StaticIdentifier: newIdentifier(), objectErr: outage})

	err := v.Validate(context.Background(), testEvent(), 42)
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	// An unreachable host is not a verdict on the event.
	if IsUnrecoverable(err) {
		t.Errorf("host outage: err = %v, want transient", err)
	}
	if !errors.Is(err, outage) {
		t.Errorf("err = %v, want wrapped outage", err)
	}
}

func TestValidateUnknownActorIsUnrecoverable(t *testing.T) {
	t.Parallel()
	ids := host.NewStaticIdentifier()
	ids.AddObject(&host.Object{ID: 42, Type: host.ObjectResource})
	v := NewValidator(ids)

	err := v.Validate(context.Background(), testEvent(), 42)
	if !IsUnrecoverable(err) {
		t.Errorf("unknown actor: err = %v, want unrecoverable", err)
	}
	if !errors.Is(err, host.ErrUnknownActor) {
		t.Errorf("err = %v, want ErrUnknownActor", err)
	}
}

func TestValidateNegativeDurationIsUnrecoverable(t *testing.T) {
	t.Parallel()
	v := NewValidator(newIdentifier())

	e := testEvent()
	e.Duration = intPtr(-5)
	err := v.Validate(context.Background(), e, 42)
	if !IsUnrecoverable(err) {
		t.Errorf("negative duration: err = %v, want unrecoverable", err)
	}
}

func TestIsUnrecoverableOnWrappedError(t *testing.T) {
	t.Parallel()
	inner := &UnrecoverableError{Reason: "bad shape"}
	wrapped := errors.Join(errors.New("context"), inner)
	if !IsUnrecoverable(wrapped) {
		t.Error("IsUnrecoverable missed a wrapped UnrecoverableError")
	}
	if IsUnrecoverable(errors.New("plain")) {
		t.Error("IsUnrecoverable matched a plain error")
	}
}
