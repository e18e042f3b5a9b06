// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

// Package store implements the per-tenant relational store: connection
// management, the uniform record schema (surrogate id + natural key +
// soft delete + dimension foreign keys), and the idempotent upsert layer
// that is the only writer path into a tenant database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	// Database drivers. DuckDB is the default analytics store; sqlite is
	// used for lightweight deployments and tests.
	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/coursetrace/coursetrace/internal/logging"
)

// Driver selects the underlying database engine.
type Driver string

// Supported drivers.
const (
	DriverDuckDB Driver = "duckdb"
	DriverSQLite Driver = "sqlite3"
)

// Config holds store configuration for one tenant database.
type Config struct {
	// Driver is "duckdb" or "sqlite3".
	Driver Driver

	// DSN is the datasource path, e.g. "/data/tenants/acme.duckdb" or
	// "file:acme.db?cache=shared". ":memory:" is supported for tests.
	DSN string

	// MaxOpenConns bounds the connection pool. 0 = NumCPU.
	MaxOpenConns int
}

// DB is one tenant's analytics database handle. A DB never references
// another tenant's rows; isolation is by construction, one database file
// per site.
type DB struct {
	conn   *sql.DB
	driver Driver
	dsn    string
}

// Open opens (and if necessary initializes) a tenant database.
func Open(cfg Config) (*DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverDuckDB
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store: DSN required")
	}

	conn, err := sql.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns == 0 {
		maxConns = runtime.NumCPU()
	}
	if cfg.Driver == DriverSQLite {
		// sqlite serializes writers anyway; a single connection also keeps
		// ":memory:" databases from fragmenting across pool connections.
		maxConns = 1
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	db := &DB{conn: conn, driver: cfg.Driver, dsn: cfg.DSN}

	if err := db.initSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logging.Debug().
		Str("driver", string(cfg.Driver)).
		Str("dsn", cfg.DSN).
		Msg("tenant store opened")

	return db, nil
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver returns the configured driver.
func (db *DB) Driver() Driver {
	return db.driver
}

// WithTx runs fn inside one transaction: the unit of work for a single
// job. The transaction is rolled back if fn returns an error or panics,
// committed otherwise. Commit errors (deferred constraint violations
// surfacing late) are returned to the caller as-is so the queue's retry
// policy can take over.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}

	return tx.Commit()
}
