// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

// Package validation implements event admission checks.
//
// Two layers:
//   - struct/shape validation of inbound wire forms via
//     go-playground/validator (ValidateStruct),
//   - referential validation of the event against the host platform
//     (Validator.Validate): target still resolvable, actor known, duration
//     sane.
//
// Referential failures are Unrecoverable: the input is malformed or refers
// to something that legitimately no longer exists. They are logged and the
// event is permanently dropped, never retried. Failure never escapes the
// caller's validation site as a panic.
package validation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/coursetrace/coursetrace/internal/event"
	"github.com/coursetrace/coursetrace/internal/host"
)

// UnrecoverableError marks input that can never succeed: a vanished target,
// an unknown actor, or malformed client data. Retrying is pointless.
type UnrecoverableError struct {
	Reason string
	Err    error
}

func (e *UnrecoverableError) Error() string {
	if e.Err != nil {
		return "unrecoverable: " + e.Reason + ": " + e.Err.Error()
	}
	return "unrecoverable: " + e.Reason
}

func (e *UnrecoverableError) Unwrap() error { return e.Err }

// IsUnrecoverable reports whether err is (or wraps) an UnrecoverableError.
func IsUnrecoverable(err error) bool {
	var ue *UnrecoverableError
	return errors.As(err, &ue)
}

// Validator checks an inbound event's referential sanity before admission.
type Validator struct {
	ids host.Identifier
}

// NewValidator creates a validator using the given identifier strategy.
func NewValidator(ids host.Identifier) *Validator {
	return &Validator{ids: ids}
}

// Validate runs the admission checks in order:
//
//  1. if referencedID is non-zero, the target must still resolve on the
//     host: Unrecoverable if gone (legitimate deletion race, not a bug).
//     Removal events are exempt: they exist to retire records for a
//     target the host may already have garbage-collected, so an
//     unresolvable target is their expected state, not a failure;
//  2. the acting user must resolve to a known entity, Unrecoverable if
//     not;
//  3. duration, when present, must be >= 0: negative means malformed
//     client data, Unrecoverable. A nil duration is a valid start marker.
//
// The only side effect is normalizing the event's timestamp.
func (v *Validator) Validate(ctx context.Context, e *event.Event, referencedID int64) error {
	if e == nil {
		return &UnrecoverableError{Reason: "nil event"}
	}

	e.Normalize()

	if err := e.Validate(); err != nil {
		return &UnrecoverableError{Reason: "malformed event", Err: err}
	}

	if referencedID != 0 && e.Kind.Class() != event.ClassRemoval {
		if _, err := v.ids.ObjectFor(ctx, referencedID); err != nil {
			if errors.Is(err, host.ErrObjectGone) {
				return &UnrecoverableError{Reason: fmt.Sprintf("target %d vanished", referencedID), Err: err}
			}
			// Host unreachable is a transient condition, not a verdict.
			return fmt.Errorf("resolve target %d: %w", referencedID, err)
		}
	}

	known, err := v.ids.ActorExists(ctx, e.Actor.ExternalID)
	if err != nil {
		return fmt.Errorf("resolve actor %d: %w", e.Actor.ExternalID, err)
	}
	if !known {
		return &UnrecoverableError{Reason: fmt.Sprintf("unknown actor %d", e.Actor.ExternalID), Err: host.ErrUnknownActor}
	}

	if e.Duration != nil && *e.Duration < 0 {
		return &UnrecoverableError{Reason: fmt.Sprintf("negative duration %d", *e.Duration)}
	}

	return nil
}

// singleton validator instance for struct validation
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// instance returns the shared validator, creating it on first use.
// The instance caches struct metadata and is safe for concurrent use.
func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct validates a struct using its `validate` tags.
// Returns a *RequestValidationError on failure.
func ValidateStruct(s interface{}) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate struct: %w", err)
	}

	rve := &RequestValidationError{}
	for _, fe := range verrs {
		rve.errors = append(rve.errors, FieldViolation{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()),
		})
	}
	return rve
}

// FieldViolation is a single struct-tag validation failure.
type FieldViolation struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// RequestValidationError is a collection of field violations from
// ValidateStruct.
type RequestValidationError struct {
	errors []FieldViolation
}

// Violations returns the individual field violations.
func (e *RequestValidationError) Violations() []FieldViolation {
	return e.errors
}

func (e *RequestValidationError) Error() string {
	if len(e.errors) == 0 {
		return "validation failed"
	}
	msg := e.errors[0].Message
	if len(e.errors) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(e.errors)-1)
	}
	return msg
}
