// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coursetrace/coursetrace/internal/event"
)

// Record is a persisted row in one of the per-kind record tables.
// Every kind shares this shape; columns not meaningful to a kind stay nil.
type Record struct {
	ID            uuid.UUID
	Kind          event.Kind
	UserID        uuid.UUID
	SessionID     *uuid.UUID
	RootContextID *uuid.UUID

	// TargetID is the host object id. Nullable: soft deletion severs it so
	// a future object reusing the id cannot collide with history.
	TargetID *int64

	OccurredAt time.Time

	// Duration is seconds, nil for start markers.
	Duration *int

	// EndTime is when the viewing ended (video views).
	EndTime *time.Time

	// MaxDuration is the target's known maximum duration (video views).
	MaxDuration *int

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Deleted reports whether the record is soft-deleted.
func (r *Record) Deleted() bool {
	return r.DeletedAt != nil
}

// NaturalKey identifies a record within its kind. Which fields participate
// depends on the kind: duration kinds key on (user, target, occurred_at),
// creation kinds on the target id (plus user for social actions). Keys are
// always derivable from the inbound event plus stored lookups, never from
// surrogate state.
type NaturalKey struct {
	UserID     uuid.UUID
	TargetID   int64
	OccurredAt time.Time
}

// KeyShape describes which NaturalKey fields a kind uses.
type KeyShape int

// Key shapes.
const (
	// KeyUserTargetTime keys on (user_id, target_id, occurred_at).
	KeyUserTargetTime KeyShape = iota
	// KeyTarget keys on target_id alone: one record per host object.
	KeyTarget
	// KeyUserTarget keys on (user_id, target_id).
	KeyUserTarget
)

// KindSpec binds an event kind to its table and key shape. The closed set
// below is what every concrete record type reuses; adding an entity type is
// one more row here, not a bespoke idempotency check.
type KindSpec struct {
	Kind       event.Kind
	Table      string
	Shape      KeyShape
	KeyColumns string
	Class      event.Class
}

// kindSpecs is the closed registry of record kinds.
var kindSpecs = map[event.Kind]KindSpec{
	event.KindResourceView: {
		Kind: event.KindResourceView, Table: "resource_views",
		Shape: KeyUserTargetTime, KeyColumns: "user_id, target_id, occurred_at",
		Class: event.ClassDuration,
	},
	event.KindVideoView: {
		Kind: event.KindVideoView, Table: "video_views",
		Shape: KeyUserTargetTime, KeyColumns: "user_id, target_id, occurred_at",
		Class: event.ClassDuration,
	},
	event.KindSubmission: {
		Kind: event.KindSubmission, Table: "submissions",
		Shape: KeyTarget, KeyColumns: "target_id",
		Class: event.ClassCreation,
	},
	event.KindForumPost: {
		Kind: event.KindForumPost, Table: "forum_posts",
		Shape: KeyTarget, KeyColumns: "target_id",
		Class: event.ClassCreation,
	},
	event.KindSocialAction: {
		Kind: event.KindSocialAction, Table: "social_actions",
		Shape: KeyUserTarget, KeyColumns: "user_id, target_id",
		Class: event.ClassCreation,
	},
}

// SpecFor returns the KindSpec for a record kind.
func SpecFor(kind event.Kind) (KindSpec, error) {
	spec, ok := kindSpecs[kind]
	if !ok {
		return KindSpec{}, fmt.Errorf("no record table for kind %q", kind)
	}
	return spec, nil
}

const recordColumns = `id, user_id, session_id, root_context_id, target_id,
	occurred_at, duration, end_time, max_duration, created_at, updated_at, deleted_at`

// FindByNaturalKey looks up a live record by its natural key within a
// transaction. Returns (nil, nil) when no record exists.
func FindByNaturalKey(ctx context.Context, tx *sql.Tx, kind event.Kind, key NaturalKey) (*Record, error) {
	spec, err := SpecFor(kind)
	if err != nil {
		return nil, err
	}

	where, args := keyPredicate(spec.Shape, key)
	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s AND deleted_at IS NULL`,
		recordColumns, spec.Table, where,
	)

	rec, err := scanRecord(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s by natural key: %w", spec.Table, err)
	}
	rec.Kind = kind
	return rec, nil
}

// keyPredicate builds the WHERE clause for a key shape.
func keyPredicate(shape KeyShape, key NaturalKey) (string, []any) {
	switch shape {
	case KeyTarget:
		return "target_id = ?", []any{key.TargetID}
	case KeyUserTarget:
		return "user_id = ? AND target_id = ?", []any{key.UserID.String(), key.TargetID}
	default:
		return "user_id = ? AND target_id = ? AND occurred_at = ?",
			[]any{key.UserID.String(), key.TargetID, key.OccurredAt.UTC()}
	}
}

// Insert writes a new record row. A uniqueness violation from a concurrent
// insert on the same natural key surfaces as an error: the caller treats it
// as retryable and the replayed job converges through the update policy.
func Insert(ctx context.Context, tx *sql.Tx, rec *Record) error {
	spec, err := SpecFor(rec.Kind)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		spec.Table, recordColumns,
	)

	_, err = tx.ExecContext(ctx, query,
		rec.ID.String(),
		rec.UserID.String(),
		uuidPtr(rec.SessionID),
		uuidPtr(rec.RootContextID),
		rec.TargetID,
		rec.OccurredAt.UTC(),
		rec.Duration,
		timePtr(rec.EndTime),
		rec.MaxDuration,
		rec.CreatedAt,
		rec.UpdatedAt,
		nil,
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", spec.Table, err)
	}
	return nil
}

// UpdateDuration replaces a record's stored duration (and, when supplied,
// end time and max duration) in place.
func UpdateDuration(ctx context.Context, tx *sql.Tx, rec *Record, duration int, endTime *time.Time, maxDuration *int) error {
	spec, err := SpecFor(rec.Kind)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	query := fmt.Sprintf(
		`UPDATE %s SET duration = ?, end_time = COALESCE(?, end_time),
			max_duration = COALESCE(?, max_duration), updated_at = ?
		 WHERE id = ?`,
		spec.Table,
	)

	if _, err := tx.ExecContext(ctx, query, duration, timePtr(endTime), maxDuration, now, rec.ID.String()); err != nil {
		return fmt.Errorf("update %s duration: %w", spec.Table, err)
	}

	rec.Duration = &duration
	if endTime != nil {
		rec.EndTime = endTime
	}
	if maxDuration != nil {
		rec.MaxDuration = maxDuration
	}
	rec.UpdatedAt = now
	return nil
}

// SoftDelete marks every live record referencing the target as deleted and
// severs the external-id link. Rows stay in place for historical reporting.
// Returns the number of records marked.
func SoftDelete(ctx context.Context, tx *sql.Tx, kind event.Kind, targetID int64) (int64, error) {
	spec, err := SpecFor(kind)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	query := fmt.Sprintf(
		`UPDATE %s SET deleted_at = ?, target_id = NULL, updated_at = ?
		 WHERE target_id = ? AND deleted_at IS NULL`,
		spec.Table,
	)

	res, err := tx.ExecContext(ctx, query, now, now, targetID)
	if err != nil {
		return 0, fmt.Errorf("soft delete %s: %w", spec.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil //nolint:nilerr // driver without RowsAffected support; the delete itself succeeded
	}
	return n, nil
}

// SoftDeleteAll soft-deletes records for the target across every record
// kind. Used for host removal notifications where the object type is no
// longer resolvable.
func SoftDeleteAll(ctx context.Context, tx *sql.Tx, targetID int64) (int64, error) {
	var total int64
	for kind := range kindSpecs {
		n, err := SoftDelete(ctx, tx, kind, targetID)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// ViewsForTarget returns live view records (resource and video) for a user
// and target, ordered by occurrence time. This is the read feed for the
// progress aggregator; it only sees committed rows.
func (db *DB) ViewsForTarget(ctx context.Context, userExternalID, targetID int64) ([]Record, error) {
	var out []Record
	for _, kind := range []event.Kind{event.KindResourceView, event.KindVideoView} {
		spec := kindSpecs[kind]
		query := fmt.Sprintf(
			`SELECT %s FROM %s r
			 WHERE r.target_id = ? AND r.deleted_at IS NULL
			   AND r.user_id = (SELECT id FROM users WHERE external_id = ?)
			 ORDER BY r.occurred_at`,
			prefixColumns("r"), spec.Table,
		)

		rows, err := db.conn.QueryContext(ctx, query, targetID, userExternalID)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", spec.Table, err)
		}

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan %s: %w", spec.Table, err)
			}
			rec.Kind = kind
			out = append(out, *rec)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}
	return out, nil
}

// prefixColumns qualifies recordColumns with a table alias.
func prefixColumns(alias string) string {
	return alias + `.id, ` + alias + `.user_id, ` + alias + `.session_id, ` +
		alias + `.root_context_id, ` + alias + `.target_id, ` + alias + `.occurred_at, ` +
		alias + `.duration, ` + alias + `.end_time, ` + alias + `.max_duration, ` +
		alias + `.created_at, ` + alias + `.updated_at, ` + alias + `.deleted_at`
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one record row.
func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec           Record
		id            string
		userID        string
		sessionID     sql.NullString
		rootContextID sql.NullString
		targetID      sql.NullInt64
		duration      sql.NullInt64
		endTime       sql.NullTime
		maxDuration   sql.NullInt64
		deletedAt     sql.NullTime
	)

	err := row.Scan(&id, &userID, &sessionID, &rootContextID, &targetID,
		&rec.OccurredAt, &duration, &endTime, &maxDuration,
		&rec.CreatedAt, &rec.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	rec.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse record id: %w", err)
	}
	rec.UserID, err = uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}

	if sessionID.Valid {
		sid, err := uuid.Parse(sessionID.String)
		if err != nil {
			return nil, fmt.Errorf("parse session id: %w", err)
		}
		rec.SessionID = &sid
	}
	if rootContextID.Valid {
		rid, err := uuid.Parse(rootContextID.String)
		if err != nil {
			return nil, fmt.Errorf("parse root context id: %w", err)
		}
		rec.RootContextID = &rid
	}
	if targetID.Valid {
		rec.TargetID = &targetID.Int64
	}
	if duration.Valid {
		d := int(duration.Int64)
		rec.Duration = &d
	}
	if endTime.Valid {
		t := endTime.Time
		rec.EndTime = &t
	}
	if maxDuration.Valid {
		m := int(maxDuration.Int64)
		rec.MaxDuration = &m
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		rec.DeletedAt = &t
	}

	rec.OccurredAt = rec.OccurredAt.UTC()
	return &rec, nil
}

// uuidPtr converts *uuid.UUID to a driver value.
func uuidPtr(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

// timePtr converts *time.Time to a driver value in UTC.
func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
