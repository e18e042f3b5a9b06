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
)

// Dimension find-or-create helpers. Dimensions follow the same soft-delete
// pattern as records: deletion keeps the row, flags it, and severs the
// external link.

// EnsureUser returns the internal id for a host user, creating the row on
// first contact.
func EnsureUser(ctx context.Context, tx *sql.Tx, externalID int64, username string) (uuid.UUID, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE external_id = ? AND deleted_at IS NULL`,
		externalID,
	).Scan(&id)

	switch {
	case err == nil:
		return uuid.Parse(id)
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return uuid.Nil, fmt.Errorf("lookup user %d: %w", externalID, err)
	}

	newID := uuid.New()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, external_id, username, created_at) VALUES (?, ?, ?, ?)`,
		newID.String(), externalID, username, time.Now().UTC().Truncate(time.Second),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert user %d: %w", externalID, err)
	}
	return newID, nil
}

// EnsureSession returns the internal id for a host session tag, creating
// the row on first contact.
func EnsureSession(ctx context.Context, tx *sql.Tx, externalTag string, userID uuid.UUID, startedAt time.Time) (uuid.UUID, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM sessions WHERE external_tag = ? AND deleted_at IS NULL`,
		externalTag,
	).Scan(&id)

	switch {
	case err == nil:
		return uuid.Parse(id)
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return uuid.Nil, fmt.Errorf("lookup session %q: %w", externalTag, err)
	}

	newID := uuid.New()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, external_tag, user_id, started_at) VALUES (?, ?, ?, ?)`,
		newID.String(), externalTag, userID.String(), startedAt.UTC().Truncate(time.Second),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert session %q: %w", externalTag, err)
	}
	return newID, nil
}

// EnsureRootContext returns the internal id for the course or entity a
// record is scoped under, creating the row on first contact.
func EnsureRootContext(ctx context.Context, tx *sql.Tx, externalID int64, contextType string) (uuid.UUID, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM root_contexts WHERE external_id = ? AND deleted_at IS NULL`,
		externalID,
	).Scan(&id)

	switch {
	case err == nil:
		return uuid.Parse(id)
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return uuid.Nil, fmt.Errorf("lookup root context %d: %w", externalID, err)
	}

	newID := uuid.New()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO root_contexts (id, external_id, context_type, created_at) VALUES (?, ?, ?, ?)`,
		newID.String(), externalID, contextType, time.Now().UTC().Truncate(time.Second),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert root context %d: %w", externalID, err)
	}
	return newID, nil
}
