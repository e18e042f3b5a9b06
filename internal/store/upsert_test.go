// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coursetrace/coursetrace/internal/event"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{Driver: DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close test database: %v", err)
		}
	})
	return db
}

func intPtr(n int) *int { return &n }

var testTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// viewRecord builds a minimal resource-view record for key.
func viewRecord(key NaturalKey, duration *int) BuildFunc {
	return func() (*Record, error) {
		target := key.TargetID
		return &Record{
			UserID:     key.UserID,
			TargetID:   &target,
			OccurredAt: key.OccurredAt,
			Duration:   duration,
		}, nil
	}
}

// ensureTestUser creates a user dimension row so record FKs resolve.
func ensureTestUser(t *testing.T, db *DB, externalID int64) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		id, err = EnsureUser(context.Background(), tx, externalID, "learner")
		return err
	})
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	return id
}

func upsertView(t *testing.T, db *DB, kind event.Kind, key NaturalKey, duration *int) (*Record, Outcome) {
	t.Helper()
	var rec *Record
	var out Outcome
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		rec, out, err = Upsert(context.Background(), tx, kind, key, viewRecord(key, duration))
		return err
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	return rec, out
}

func TestUpsertInsertsWhenAbsent(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	userID := ensureTestUser(t, db, 101)
	key := NaturalKey{UserID: userID, TargetID: 42, OccurredAt: testTime}

	rec, out := upsertView(t, db, event.KindResourceView, key, intPtr(20))
	if out != OutcomeInserted {
		t.Errorf("outcome = %v, want OutcomeInserted", out)
	}
	if rec.Duration == nil || *rec.Duration != 20 {
		t.Errorf("duration = %v, want 20", rec.Duration)
	}
}

func TestUpsertMonotonicDuration(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	userID := ensureTestUser(t, db, 101)
	key := NaturalKey{UserID: userID, TargetID: 42, OccurredAt: testTime}

	upsertView(t, db, event.KindResourceView, key, intPtr(30))

	// A smaller duration is a duplicate, not a regression.
	rec, out := upsertView(t, db, event.KindResourceView, key, intPtr(10))
	if out != OutcomeDuplicate {
		t.Errorf("replay with smaller duration: outcome = %v, want OutcomeDuplicate", out)
	}
	if rec.Duration == nil || *rec.Duration != 30 {
		t.Errorf("duration after smaller replay = %v, want 30", rec.Duration)
	}

	// A strictly greater duration supersedes.
	rec, out = upsertView(t, db, event.KindResourceView, key, intPtr(45))
	if out != OutcomeUpdated {
		t.Errorf("replay with greater duration: outcome = %v, want OutcomeUpdated", out)
	}
	if rec.Duration == nil || *rec.Duration != 45 {
		t.Errorf("duration after greater replay = %v, want 45", rec.Duration)
	}

	// Equal duration is a duplicate.
	_, out = upsertView(t, db, event.KindResourceView, key, intPtr(45))
	if out != OutcomeDuplicate {
		t.Errorf("replay with equal duration: outcome = %v, want OutcomeDuplicate", out)
	}
}

func TestUpsertStartMarkerNeverSupersedes(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	userID := ensureTestUser(t, db, 101)
	key := NaturalKey{UserID: userID, TargetID: 7, OccurredAt: testTime}

	upsertView(t, db, event.KindResourceView, key, intPtr(15))

	rec, out := upsertView(t, db, event.KindResourceView, key, nil)
	if out != OutcomeDuplicate {
		t.Errorf("nil-duration replay: outcome = %v, want OutcomeDuplicate", out)
	}
	if rec.Duration == nil || *rec.Duration != 15 {
		t.Errorf("duration = %v, want 15", rec.Duration)
	}
}

func TestUpsertConcreteSupersedesStartMarker(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	userID := ensureTestUser(t, db, 101)
	key := NaturalKey{UserID: userID, TargetID: 7, OccurredAt: testTime}

	rec, out := upsertView(t, db, event.KindResourceView, key, nil)
	if out != OutcomeInserted {
		t.Fatalf("start marker insert: outcome = %v, want OutcomeInserted", out)
	}
	if rec.Duration != nil {
		t.Errorf("start marker duration = %v, want nil", rec.Duration)
	}

	rec, out = upsertView(t, db, event.KindResourceView, key, intPtr(0))
	if out != OutcomeUpdated {
		t.Errorf("zero-duration measurement: outcome = %v, want OutcomeUpdated", out)
	}
	if rec.Duration == nil || *rec.Duration != 0 {
		t.Errorf("duration = %v, want 0", rec.Duration)
	}
}

func TestUpsertCreationClassIsTerminal(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	userID := ensureTestUser(t, db, 101)
	key := NaturalKey{UserID: userID, TargetID: 900, OccurredAt: testTime}

	_, out := upsertView(t, db, event.KindSubmission, key, nil)
	if out != OutcomeInserted {
		t.Fatalf("first creation: outcome = %v, want OutcomeInserted", out)
	}

	// Creation events replayed with any payload are discarded.
	_, out = upsertView(t, db, event.KindSubmission, key, intPtr(60))
	if out != OutcomeDuplicate {
		t.Errorf("replayed creation: outcome = %v, want OutcomeDuplicate", out)
	}
}

func TestUpsertIdempotenceUnderDuplicates(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	userID := ensureTestUser(t, db, 101)
	key := NaturalKey{UserID: userID, TargetID: 42, OccurredAt: testTime}

	for i := 0; i < 5; i++ {
		upsertView(t, db, event.KindResourceView, key, intPtr(20))
	}

	records, err := db.ViewsForTarget(context.Background(), 101, 42)
	if err != nil {
		t.Fatalf("views for target: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("record count after 5 duplicates = %d, want 1", len(records))
	}
	if records[0].Duration == nil || *records[0].Duration != 20 {
		t.Errorf("duration = %v, want 20", records[0].Duration)
	}
}

func TestUpsertDistinctTimestampsDistinctRecords(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	userID := ensureTestUser(t, db, 101)

	k1 := NaturalKey{UserID: userID, TargetID: 42, OccurredAt: testTime}
	k2 := NaturalKey{UserID: userID, TargetID: 42, OccurredAt: testTime.Add(time.Minute)}

	upsertView(t, db, event.KindResourceView, k1, intPtr(10))
	upsertView(t, db, event.KindResourceView, k2, intPtr(10))

	records, err := db.ViewsForTarget(context.Background(), 101, 42)
	if err != nil {
		t.Fatalf("views for target: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("record count = %d, want 2", len(records))
	}
}

func TestSoftDeleteSeversTargetLink(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	userID := ensureTestUser(t, db, 101)
	key := NaturalKey{UserID: userID, TargetID: 42, OccurredAt: testTime}

	upsertView(t, db, event.KindResourceView, key, intPtr(20))

	var n int64
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		n, err = SoftDeleteAll(context.Background(), tx, 42)
		return err
	})
	if err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if n != 1 {
		t.Errorf("soft-deleted rows = %d, want 1", n)
	}

	// Deleted rows are invisible to natural-key lookup, so a future
	// object reusing id 42 starts clean.
	records, err := db.ViewsForTarget(context.Background(), 101, 42)
	if err != nil {
		t.Fatalf("views for target: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("visible records after soft delete = %d, want 0", len(records))
	}

	rec, out := upsertView(t, db, event.KindResourceView, key, intPtr(5))
	if out != OutcomeInserted {
		t.Errorf("insert after soft delete: outcome = %v, want OutcomeInserted", out)
	}
	if rec.Duration == nil || *rec.Duration != 5 {
		t.Errorf("duration = %v, want 5", rec.Duration)
	}
}

func TestEnsureUserFindOrCreate(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	first := ensureTestUser(t, db, 555)
	second := ensureTestUser(t, db, 555)
	if first != second {
		t.Errorf("EnsureUser returned different ids for one external id: %s vs %s", first, second)
	}

	other := ensureTestUser(t, db, 556)
	if other == first {
		t.Errorf("distinct external ids share internal id %s", first)
	}
}

func TestEnsureSessionAndRootContextFindOrCreate(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	userID := ensureTestUser(t, db, 555)

	var firstSession, secondSession, firstCtx, secondCtx uuid.UUID
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		if firstSession, err = EnsureSession(context.Background(), tx, "sess-a", userID, testTime); err != nil {
			return err
		}
		if secondSession, err = EnsureSession(context.Background(), tx, "sess-a", userID, testTime.Add(time.Hour)); err != nil {
			return err
		}
		if firstCtx, err = EnsureRootContext(context.Background(), tx, 7, "course"); err != nil {
			return err
		}
		secondCtx, err = EnsureRootContext(context.Background(), tx, 7, "course")
		return err
	})
	if err != nil {
		t.Fatalf("ensure dimensions: %v", err)
	}

	if firstSession != secondSession {
		t.Errorf("EnsureSession returned different ids for one tag: %s vs %s", firstSession, secondSession)
	}
	if firstCtx != secondCtx {
		t.Errorf("EnsureRootContext returned different ids for one external id: %s vs %s", firstCtx, secondCtx)
	}
}

func TestSpecForUnknownKind(t *testing.T) {
	t.Parallel()
	if _, err := SpecFor(event.Kind("bogus")); err == nil {
		t.Error("SpecFor(bogus) = nil error, want error")
	}
}
