package mirror_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
	_ "github.com/MahdiBaghbani/familyagenda-go/internal/platform/store/mirror"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store/sqlite"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store/storetest"
)

func TestMirrorDriver(t *testing.T) {
	dir := t.TempDir()
	storetest.RunDriverTests(t, "mirror", &store.DriverConfig{Driver: "mirror", DataDir: dir})

	if _, err := os.Stat(filepath.Join(dir, sqlite.DBFile)); os.IsNotExist(err) {
		t.Errorf("%s not created", sqlite.DBFile)
	}
	for _, f := range []string{"memberships.json", "invites.json", "tasks.json", "events.json"} {
		if _, err := os.Stat(filepath.Join(dir, "mirror", f)); err != nil {
			t.Errorf("mirror file %s missing: %v", f, err)
		}
	}
}

func newMirror(t *testing.T, cfg store.MirrorConfig) (store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(&store.DriverConfig{Driver: "mirror", DataDir: dir, Mirror: cfg})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func TestMirrorDriverRedactsInviteEmails(t *testing.T) {
	ctx := context.Background()
	s, dir := newMirror(t, store.MirrorConfig{})

	if err := s.CreateInvite(ctx, &store.Invite{ID: "inv-1", FamilyID: "fam", Email: "secret@example.com", Role: store.RoleMember}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "mirror", "invites.json"))
	if err != nil {
		t.Fatalf("failed to read invites.json: %v", err)
	}
	if strings.Contains(string(data), "secret@example.com") {
		t.Error("invite email leaked into mirror export")
	}

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != "inv-1" {
		t.Errorf("unexpected export: %s", data)
	}
}

func TestMirrorDriverIncludesInviteEmailsWhenAllowed(t *testing.T) {
	ctx := context.Background()
	s, dir := newMirror(t, store.MirrorConfig{IncludeInviteEmails: true})

	if err := s.CreateInvite(ctx, &store.Invite{ID: "inv-1", FamilyID: "fam", Email: "visible@example.com", Role: store.RoleMember}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "mirror", "invites.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "visible@example.com") {
		t.Error("expected invite email in export")
	}
}

func TestMirrorDriverNoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	s, dir := newMirror(t, store.MirrorConfig{})

	_ = s.CreateMembership(ctx, &store.Membership{FamilyID: "fam", UserID: "u-1", Role: store.RoleAdmin})

	entries, err := os.ReadDir(filepath.Join(dir, "mirror"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
