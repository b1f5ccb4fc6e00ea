package installdb_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/skilldex-dev/skilldex/pkg/installdb"
)

func dbPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "installed.json")
}

func TestLoad_missingFileIsEmpty(t *testing.T) {
	db, err := installdb.Load(dbPath(t))
	if err != nil {
		t.Fatal(err)
	}
	if db.Version != installdb.SchemaVersion || len(db.Skills) != 0 {
		t.Errorf("db: %+v", db)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := dbPath(t)
	db := &installdb.DB{}
	db.Upsert(installdb.InstalledSkill{
		Name:           "widget-helper",
		Description:    "Helps with widgets",
		RegistrySlug:   "acme-widget",
		UpdateStrategy: "manual",
		Agents:         []string{"claude"},
		InstalledAt:    time.Now().UTC().Truncate(time.Second),
		Path:           ".claude/skills/widget-helper",
		ContentHash:    "sha256:abc",
	})

	if err := installdb.Save(path, db); err != nil {
		t.Fatal(err)
	}
	got, err := installdb.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != installdb.SchemaVersion || len(got.Skills) != 1 {
		t.Fatalf("db: %+v", got)
	}
	s := got.Skills[0]
	if s.Name != "widget-helper" || s.RegistrySlug != "acme-widget" || s.ContentHash != "sha256:abc" {
		t.Errorf("entry: %+v", s)
	}
}

func TestLoad_migratesV1(t *testing.T) {
	path := dbPath(t)
	v1 := `{
  "version": 1,
  "skills": [
    {
      "name": "old-skill",
      "description": "from before",
      "source": "acme/widget",
      "installedAt": "2025-06-01T12:00:00Z",
      "sha": "abc123",
      "path": ".claude/skills/old-skill"
    }
  ]
}`
	if err := os.WriteFile(path, []byte(v1), 0o644); err != nil {
		t.Fatal(err)
	}

	db, err := installdb.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if db.Version != installdb.SchemaVersion || len(db.Skills) != 1 {
		t.Fatalf("db: %+v", db)
	}
	s := db.Skills[0]
	if s.UpdateStrategy != installdb.DefaultUpdateStrategy {
		t.Errorf("UpdateStrategy: %q", s.UpdateStrategy)
	}
	if len(s.Agents) != 1 || s.Agents[0] != installdb.DefaultAgent {
		t.Errorf("Agents: %v", s.Agents)
	}
	if s.Global {
		t.Error("migrated entries default to project-local")
	}
	if s.Source != "acme/widget" || s.SHA != "abc123" {
		t.Errorf("carried fields: %+v", s)
	}
}

func TestLoad_rejectsNewerVersion(t *testing.T) {
	path := dbPath(t)
	if err := os.WriteFile(path, []byte(`{"version": 99, "skills": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := installdb.Load(path)
	if err == nil || !strings.Contains(err.Error(), "newer") {
		t.Errorf("got %v", err)
	}
}

func TestFindUpsertRemove(t *testing.T) {
	db := &installdb.DB{}
	db.Upsert(installdb.InstalledSkill{Name: "a", Source: "acme/widget", Description: "first"})
	db.Upsert(installdb.InstalledSkill{Name: "b", Source: "acme/widget"})
	db.Upsert(installdb.InstalledSkill{Name: "a", Source: "acme/widget", Description: "replaced"})

	if len(db.Skills) != 2 {
		t.Fatalf("skills: %+v", db.Skills)
	}
	if got := db.Find("a", "acme/widget"); got == nil || got.Description != "replaced" {
		t.Errorf("Find(a): %+v", got)
	}
	if db.Find("missing", "acme/widget") != nil {
		t.Error("Find on missing name")
	}
	if db.Find("a", "other/source") != nil {
		t.Error("Find on wrong source")
	}

	if !db.Remove("a", "acme/widget") {
		t.Error("Remove(a) reported false")
	}
	if db.Remove("a", "acme/widget") {
		t.Error("second Remove(a) reported true")
	}
	if len(db.Skills) != 1 || db.Skills[0].Name != "b" {
		t.Errorf("after remove: %+v", db.Skills)
	}
}

func TestSameNameDifferentSourcesCoexist(t *testing.T) {
	db := &installdb.DB{}
	db.Upsert(installdb.InstalledSkill{Name: "reviewer", Source: "other/tools", Description: "first in"})
	db.Upsert(installdb.InstalledSkill{Name: "reviewer", Source: "acme/widget", Description: "second in"})

	if len(db.Skills) != 2 {
		t.Fatalf("same name from two sources must coexist: %+v", db.Skills)
	}
	if got := db.Find("reviewer", "other/tools"); got == nil || got.Description != "first in" {
		t.Errorf("first entry: %+v", got)
	}
	if got := db.Find("reviewer", "acme/widget"); got == nil || got.Description != "second in" {
		t.Errorf("second entry: %+v", got)
	}
	if got := db.FindByName("reviewer"); len(got) != 2 {
		t.Errorf("FindByName: %+v", got)
	}

	// Removing one source leaves the other installed.
	if !db.Remove("reviewer", "other/tools") {
		t.Error("Remove reported false")
	}
	if db.Find("reviewer", "acme/widget") == nil {
		t.Error("removing one source removed the other")
	}
}

func TestAuthRoundTrip(t *testing.T) {
	dir := t.TempDir()

	// Missing file yields zero state.
	a, err := installdb.LoadAuth(dir)
	if err != nil {
		t.Fatal(err)
	}
	if a.AccessToken != "" {
		t.Errorf("zero state: %+v", a)
	}

	want := &installdb.Auth{
		AccessToken:     "jwt-token",
		RefreshToken:    "sr_refresh",
		AccessExpiresAt: time.Now().UTC().Add(time.Hour).Truncate(time.Second),
		Username:        "octocat",
	}
	if err := installdb.SaveAuth(dir, want); err != nil {
		t.Fatal(err)
	}

	got, err := installdb.LoadAuth(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != want.AccessToken || got.Username != want.Username {
		t.Errorf("got %+v", got)
	}

	// Credentials are owner-only on disk.
	info, err := os.Stat(filepath.Join(dir, "auth.json"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("auth.json mode: %o", perm)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := installdb.LoadSettings(dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.RegistryURL != "" {
		t.Errorf("zero state: %+v", s)
	}

	if err := installdb.SaveSettings(dir, &installdb.Settings{
		RegistryURL:  "https://registry.example.com",
		DefaultAgent: "claude",
	}); err != nil {
		t.Fatal(err)
	}
	got, err := installdb.LoadSettings(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.RegistryURL != "https://registry.example.com" || got.DefaultAgent != "claude" {
		t.Errorf("got %+v", got)
	}
}
