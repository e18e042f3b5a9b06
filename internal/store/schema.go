// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package store

import (
	"context"
	"fmt"
)

// Every table follows the same structural pattern: surrogate uuid id,
// indexed natural-key columns, a nullable deleted_at marker, and foreign
// keys into the shared dimension tables. Rows are never hard-deleted:
// historical reports must keep resolving old references, so deletion is
// the status flag plus severing of the external-id link (preventing
// collisions when the host reuses ids).
//
// The DDL below is deliberately dialect-neutral: VARCHAR surrogate keys,
// `?` placeholders and TIMESTAMP columns behave identically on DuckDB and
// sqlite.

// dimensionDDL creates the shared dimension tables.
var dimensionDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR PRIMARY KEY,
		external_id BIGINT,
		username VARCHAR NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		deleted_at TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_external ON users(external_id)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id VARCHAR PRIMARY KEY,
		external_tag VARCHAR,
		user_id VARCHAR NOT NULL REFERENCES users(id),
		started_at TIMESTAMP NOT NULL,
		deleted_at TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_external ON sessions(external_tag)`,

	`CREATE TABLE IF NOT EXISTS root_contexts (
		id VARCHAR PRIMARY KEY,
		external_id BIGINT,
		context_type VARCHAR NOT NULL DEFAULT '',
		title VARCHAR NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		deleted_at TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_root_contexts_external ON root_contexts(external_id)`,
}

// recordDDL builds the DDL for one record table. All record tables share
// the same column set; the natural key differs per kind and is enforced by
// a unique index over the key columns.
func recordDDL(table string, keyColumns string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR PRIMARY KEY,
			user_id VARCHAR NOT NULL REFERENCES users(id),
			session_id VARCHAR REFERENCES sessions(id),
			root_context_id VARCHAR REFERENCES root_contexts(id),
			target_id BIGINT,
			occurred_at TIMESTAMP NOT NULL,
			duration INTEGER,
			end_time TIMESTAMP,
			max_duration INTEGER,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			deleted_at TIMESTAMP
		)`, table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_natural ON %s(%s)`, table, table, keyColumns),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_target ON %s(target_id)`, table, table),
	}
}

// initSchema creates all tables for a tenant database.
func (db *DB) initSchema(ctx context.Context) error {
	stmts := make([]string, 0, len(dimensionDDL)+len(kindSpecs)*3)
	stmts = append(stmts, dimensionDDL...)
	for _, spec := range kindSpecs {
		stmts = append(stmts, recordDDL(spec.Table, spec.KeyColumns)...)
	}

	for _, stmt := range stmts {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}
