// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package tenant

import (
	"reflect"
	"testing"

	"github.com/coursetrace/coursetrace/internal/store"
)

func openStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(store.Config{Driver: store.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	db := openStore(t)

	if err := reg.Register("acme", db); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, ok := reg.Lookup("acme")
	if !ok || got != db {
		t.Errorf("Lookup(acme) = %v, %v; want registered handle", got, ok)
	}
	if _, ok := reg.Lookup("ghost"); ok {
		t.Error("Lookup(ghost) = true, want false")
	}
}

func TestRegistryRejectsInvalidRegistrations(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	if err := reg.Register("", openStore(t)); err == nil {
		t.Error("Register with empty tag = nil error, want error")
	}
	if err := reg.Register("acme", nil); err == nil {
		t.Error("Register with nil database = nil error, want error")
	}
}

func TestRegistryDeregister(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	if err := reg.Register("acme", openStore(t)); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Deregister("acme")
	if _, ok := reg.Lookup("acme"); ok {
		t.Error("tenant still resolvable after deregistration")
	}
}

func TestRegistryTagsSorted(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	for _, tag := range []string{"globex", "acme", "initech"} {
		if err := reg.Register(tag, openStore(t)); err != nil {
			t.Fatalf("register %s: %v", tag, err)
		}
	}
	want := []string{"acme", "globex", "initech"}
	if got := reg.Tags(); !reflect.DeepEqual(got, want) {
		t.Errorf("Tags() = %v, want %v", got, want)
	}
}

func TestResolverPrefersEventCandidates(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	if err := reg.Register("acme", openStore(t)); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("fallback", openStore(t)); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(reg, "fallback")

	// First registered candidate wins, even with a default available.
	got := r.Resolve([]string{"ghost", "acme"})
	if got == nil || got.Tag != "acme" {
		t.Errorf("Resolve = %+v, want acme", got)
	}
}

func TestResolverFallsBackToDefaults(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	if err := reg.Register("fallback", openStore(t)); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(reg, "fallback")

	got := r.Resolve([]string{"ghost"})
	if got == nil || got.Tag != "fallback" {
		t.Errorf("Resolve = %+v, want fallback", got)
	}
}

func TestResolverNilMeansSilentDrop(t *testing.T) {
	t.Parallel()
	r := NewResolver(NewRegistry(), "fallback")
	if got := r.Resolve([]string{"ghost"}); got != nil {
		t.Errorf("Resolve with no registered tenants = %+v, want nil", got)
	}
}
