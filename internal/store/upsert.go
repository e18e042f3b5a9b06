// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coursetrace/coursetrace/internal/event"
	"github.com/coursetrace/coursetrace/internal/logging"
	"github.com/coursetrace/coursetrace/internal/metrics"
)

// Outcome reports what Upsert did.
type Outcome int

// Upsert outcomes.
const (
	// OutcomeInserted means no record existed and one was created.
	OutcomeInserted Outcome = iota
	// OutcomeUpdated means an existing record's duration was superseded.
	OutcomeUpdated
	// OutcomeDuplicate means the delivery was discarded as a no-op.
	OutcomeDuplicate
)

// BuildFunc constructs the record to insert when none exists for the key.
type BuildFunc func() (*Record, error)

// Upsert is the single idempotent write path for every record kind.
//
// Look up the natural key; if absent, build and insert. If present, apply
// the update policy for the kind's class:
//
//   - duration class: a strictly greater incoming duration supersedes the
//     stored one (a later report of "how long this was viewed" is a more
//     complete measurement of the same viewing); anything else is a
//     duplicate delivery, logged at warn and discarded. The policy is
//     commutative and idempotent, so replays and races converge.
//   - creation class: existence is terminal; a second creation event for
//     the same key is always a duplicate.
//
// Applying the same upsert twice never duplicates state, which is what
// makes jobs safely re-executable under at-least-once delivery.
func Upsert(ctx context.Context, tx *sql.Tx, kind event.Kind, key NaturalKey, build BuildFunc) (*Record, Outcome, error) {
	spec, err := SpecFor(kind)
	if err != nil {
		return nil, OutcomeDuplicate, err
	}

	existing, err := FindByNaturalKey(ctx, tx, kind, key)
	if err != nil {
		return nil, OutcomeDuplicate, err
	}

	if existing == nil {
		rec, err := build()
		if err != nil {
			return nil, OutcomeDuplicate, fmt.Errorf("build %s record: %w", kind, err)
		}
		rec.Kind = kind
		if err := Insert(ctx, tx, rec); err != nil {
			// Likely a concurrent insert on the same key; the unique index
			// violation is retryable and the replay converges via the
			// update branch.
			return nil, OutcomeDuplicate, err
		}
		metrics.RecordsInserted.WithLabelValues(string(kind)).Inc()
		return rec, OutcomeInserted, nil
	}

	if spec.Class == event.ClassDuration {
		rec, err := build()
		if err != nil {
			return nil, OutcomeDuplicate, fmt.Errorf("build %s record: %w", kind, err)
		}
		if supersedes(rec.Duration, existing.Duration) {
			if err := UpdateDuration(ctx, tx, existing, *rec.Duration, rec.EndTime, rec.MaxDuration); err != nil {
				return nil, OutcomeDuplicate, err
			}
			metrics.RecordDurationUpdates.WithLabelValues(string(kind)).Inc()
			return existing, OutcomeUpdated, nil
		}
	}

	logging.Warn().
		Str("kind", string(kind)).
		Int64("target_id", key.TargetID).
		Str("record_id", existing.ID.String()).
		Msg("duplicate delivery discarded")
	metrics.RecordDuplicates.WithLabelValues(string(kind)).Inc()
	return existing, OutcomeDuplicate, nil
}

// supersedes reports whether the incoming duration strictly exceeds the
// stored one. A nil incoming duration (start marker) never supersedes; a
// nil stored duration is superseded by any concrete measurement.
func supersedes(incoming, stored *int) bool {
	if incoming == nil {
		return false
	}
	if stored == nil {
		return true
	}
	return *incoming > *stored
}
