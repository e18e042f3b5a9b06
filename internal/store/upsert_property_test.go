// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/coursetrace/coursetrace/internal/event"
)

// TestUpsertConvergesToMaxDuration checks the upsert policy's algebra: for
// any sequence of durations delivered for one natural key, in any order
// and with any duplication, exactly one record exists afterwards and it
// holds the maximum duration seen.
func TestUpsertConvergesToMaxDuration(t *testing.T) {
	t.Parallel()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("one record holding the max duration", prop.ForAll(
		func(durations []int) bool {
			db, err := Open(Config{Driver: DriverSQLite, DSN: ":memory:"})
			if err != nil {
				return false
			}
			defer db.Close()

			ctx := context.Background()
			var key NaturalKey
			err = db.WithTx(ctx, func(tx *sql.Tx) error {
				userID, err := EnsureUser(ctx, tx, 101, "learner")
				if err != nil {
					return err
				}
				key = NaturalKey{UserID: userID, TargetID: 42, OccurredAt: testTime}
				for i := range durations {
					d := durations[i]
					_, _, err := Upsert(ctx, tx, event.KindResourceView, key, viewRecord(key, &d))
					if err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return false
			}

			records, err := db.ViewsForTarget(ctx, 101, 42)
			if err != nil || len(records) != 1 {
				return false
			}

			max := durations[0]
			for _, d := range durations {
				if d > max {
					max = d
				}
			}
			return records[0].Duration != nil && *records[0].Duration == max
		},
		gen.SliceOfN(6, gen.IntRange(0, 3600)),
	))

	properties.TestingRun(t)
}
