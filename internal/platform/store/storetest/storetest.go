// Package storetest provides the contract suite every store driver runs.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
)

const familyID = "fam-1"

// RunDriverTests creates the configured driver and runs the suite against it.
func RunDriverTests(t *testing.T, driverName string, cfg *store.DriverConfig) {
	t.Helper()
	ctx := context.Background()

	s, err := store.New(cfg)
	if err != nil {
		t.Fatalf("failed to create %s driver: %v", driverName, err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Init(ctx); err != nil {
		t.Fatalf("failed to init %s driver: %v", driverName, err)
	}
	if s.Name() != driverName {
		t.Errorf("expected driver name %q, got %q", driverName, s.Name())
	}

	t.Run("Memberships", func(t *testing.T) { testMemberships(t, s) })
	t.Run("MembershipRace", func(t *testing.T) { testMembershipRace(t, s) })
	t.Run("Invites", func(t *testing.T) { testInvites(t, s) })
	t.Run("Tasks", func(t *testing.T) { testTasks(t, s) })
	t.Run("Events", func(t *testing.T) { testEvents(t, s) })
}

func testMemberships(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	if _, err := s.GetMembership(ctx, familyID, "u-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for i, uid := range []string{"u-2", "u-1", "u-3"} {
		m := &store.Membership{FamilyID: familyID, UserID: uid, Role: store.RoleMember, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.CreateMembership(ctx, m); err != nil {
			t.Fatalf("CreateMembership(%s): %v", uid, err)
		}
	}

	dup := &store.Membership{FamilyID: familyID, UserID: "u-1", Role: store.RoleAdmin}
	if err := s.CreateMembership(ctx, dup); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("duplicate insert: expected ErrAlreadyExists, got %v", err)
	}

	got, err := s.GetMembership(ctx, familyID, "u-1")
	if err != nil {
		t.Fatalf("GetMembership: %v", err)
	}
	if got.Role != store.RoleMember {
		t.Errorf("duplicate insert changed role to %q", got.Role)
	}

	list, err := s.ListMemberships(ctx, familyID)
	if err != nil {
		t.Fatalf("ListMemberships: %v", err)
	}
	want := []string{"u-2", "u-1", "u-3"}
	if len(list) != len(want) {
		t.Fatalf("expected %d memberships, got %d", len(want), len(list))
	}
	for i, m := range list {
		if m.UserID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], m.UserID)
		}
	}

	other, _ := s.ListMemberships(ctx, "fam-other")
	if len(other) != 0 {
		t.Errorf("expected no memberships for other family, got %d", len(other))
	}

	if err := s.DeleteMembership(ctx, familyID, "u-3"); err != nil {
		t.Fatalf("DeleteMembership: %v", err)
	}
	if err := s.DeleteMembership(ctx, familyID, "u-3"); err != nil {
		t.Fatalf("deleting a missing membership should succeed, got %v", err)
	}
	if _, err := s.GetMembership(ctx, familyID, "u-3"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func testMembershipRace(t *testing.T, s store.Store) {
	ctx := context.Background()
	const n = 8

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.CreateMembership(ctx, &store.Membership{FamilyID: "fam-race", UserID: "racer", Role: store.RoleMember})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, store.ErrAlreadyExists):
		default:
			// SQLite may report busy under contention; that is still not a second row.
			t.Logf("concurrent insert error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one successful insert, got %d", ok)
	}
	list, _ := s.ListMemberships(ctx, "fam-race")
	if len(list) != 1 {
		t.Errorf("expected one membership row, got %d", len(list))
	}
}

func testInvites(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	if _, err := s.LatestInviteForEmail(ctx, familyID, "x@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	older := &store.Invite{ID: "inv-1", FamilyID: familyID, Email: "x@example.com", Role: store.RoleAdmin, CreatedAt: base}
	newer := &store.Invite{ID: "inv-2", FamilyID: familyID, Email: "x@example.com", Role: store.RoleMember, CreatedAt: base.Add(time.Hour)}
	foreign := &store.Invite{ID: "inv-3", FamilyID: "fam-other", Email: "x@example.com", Role: store.RoleAdmin, CreatedAt: base.Add(2 * time.Hour)}
	for _, inv := range []*store.Invite{older, newer, foreign} {
		if err := s.CreateInvite(ctx, inv); err != nil {
			t.Fatalf("CreateInvite(%s): %v", inv.ID, err)
		}
	}

	got, err := s.LatestInviteForEmail(ctx, familyID, "X@Example.COM")
	if err != nil {
		t.Fatalf("LatestInviteForEmail: %v", err)
	}
	if got.ID != "inv-2" || got.Role != store.RoleMember {
		t.Errorf("expected newest invite inv-2/member, got %s/%s", got.ID, got.Role)
	}
	if got.AcceptedAt != nil {
		t.Errorf("new invite should not be accepted")
	}

	at := base.Add(3 * time.Hour)
	changed, err := s.MarkInviteAccepted(ctx, "inv-2", at)
	if err != nil {
		t.Fatalf("MarkInviteAccepted: %v", err)
	}
	if !changed {
		t.Error("expected first accept to change the row")
	}
	changed, err = s.MarkInviteAccepted(ctx, "inv-2", at.Add(time.Hour))
	if err != nil {
		t.Fatalf("second MarkInviteAccepted: %v", err)
	}
	if changed {
		t.Error("second accept must not overwrite accepted_at")
	}

	got, _ = s.LatestInviteForEmail(ctx, familyID, "x@example.com")
	if got.AcceptedAt == nil || !got.AcceptedAt.Equal(at) {
		t.Errorf("accepted_at = %v, want %v", got.AcceptedAt, at)
	}

	list, err := s.ListInvites(ctx, familyID)
	if err != nil {
		t.Fatalf("ListInvites: %v", err)
	}
	if len(list) != 2 || list[0].ID != "inv-2" {
		t.Errorf("expected two invites newest first, got %+v", list)
	}
}

func testTasks(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	task := &store.Task{ID: "t-1", FamilyID: familyID, CreatedBy: "u-1", Description: "Comprar pão", Category: "Compras", Date: "2025-03-02", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	got, err := s.GetTask(ctx, familyID, "t-1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Description != "Comprar pão" || got.Category != "Compras" {
		t.Errorf("unexpected task %+v", got)
	}
	if _, err := s.GetTask(ctx, "fam-other", "t-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("task must be scoped to its family, got %v", err)
	}

	got.Done = true
	got.UpdatedAt = now.Add(time.Minute)
	if err := s.UpdateTask(ctx, got); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	got, _ = s.GetTask(ctx, familyID, "t-1")
	if !got.Done {
		t.Error("expected task to be done after update")
	}

	missing := &store.Task{ID: "t-missing", FamilyID: familyID}
	if err := s.UpdateTask(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("update of missing task: expected ErrNotFound, got %v", err)
	}

	list, err := s.ListTasks(ctx, familyID)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListTasks: %v (len %d)", err, len(list))
	}

	if err := s.DeleteTask(ctx, familyID, "t-1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if err := s.DeleteTask(ctx, familyID, "t-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func testEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	late := &store.Event{ID: "e-1", FamilyID: familyID, CreatedBy: "u-1", Title: "Jantar", Category: "Jantar", StartsAt: "2025-03-10T20:00", CreatedAt: now, UpdatedAt: now}
	early := &store.Event{ID: "e-2", FamilyID: familyID, CreatedBy: "u-1", Title: "Consulta", Category: "Consulta", StartsAt: "2025-03-05T09:30", CreatedAt: now, UpdatedAt: now}
	for _, e := range []*store.Event{late, early} {
		if err := s.CreateEvent(ctx, e); err != nil {
			t.Fatalf("CreateEvent(%s): %v", e.ID, err)
		}
	}

	list, err := s.ListEvents(ctx, familyID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(list) != 2 || list[0].ID != "e-2" {
		t.Errorf("expected events ordered by start, got %+v", list)
	}

	got, _ := s.GetEvent(ctx, familyID, "e-1")
	got.Title = "Jantar de família"
	if err := s.UpdateEvent(ctx, got); err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	got, _ = s.GetEvent(ctx, familyID, "e-1")
	if got.Title != "Jantar de família" {
		t.Errorf("title = %q", got.Title)
	}

	if err := s.DeleteEvent(ctx, familyID, "e-1"); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if _, err := s.GetEvent(ctx, familyID, "e-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
