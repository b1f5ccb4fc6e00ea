// Package installdb persists the CLI's client-side state under the platform
// user-config directory: the installed-skill database, stored credentials,
// and user settings.
package installdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SchemaVersion is the current installed.json schema.
const SchemaVersion = 2

// Default field values filled when loading version-1 data.
const (
	DefaultUpdateStrategy = "manual"
	DefaultAgent          = "claude"
)

// InstalledSkill is one locally installed skill.
type InstalledSkill struct {
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Source         string    `json:"source,omitempty"`       // owner/repo[/path] shorthand
	RegistrySlug   string    `json:"registrySlug,omitempty"` // set when installed from the registry
	UpdateStrategy string    `json:"updateStrategy"`
	Agents         []string  `json:"agents"`
	Global         bool      `json:"global"`
	InstalledAt    time.Time `json:"installedAt"`
	SHA            string    `json:"sha,omitempty"`
	Path           string    `json:"path"`
	ContentHash    string    `json:"contentHash,omitempty"`
}

// DB is the installed-skill database.
type DB struct {
	Version int              `json:"version"`
	Skills  []InstalledSkill `json:"skills"`
}

// v1Skill is the legacy entry layout: no update strategy, agent list, or
// global flag.
type v1Skill struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Source      string    `json:"source,omitempty"`
	InstalledAt time.Time `json:"installedAt"`
	SHA         string    `json:"sha,omitempty"`
	Path        string    `json:"path"`
}

// Load reads the database at path. A missing file yields an empty current-
// version database. Version-1 data is migrated in memory; the file on disk is
// rewritten on the next Save.
func Load(path string) (*DB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &DB{Version: SchemaVersion, Skills: []InstalledSkill{}}, nil
		}
		return nil, fmt.Errorf("read installed db: %w", err)
	}

	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse installed db: %w", err)
	}

	switch probe.Version {
	case SchemaVersion:
		var db DB
		if err := json.Unmarshal(data, &db); err != nil {
			return nil, fmt.Errorf("parse installed db: %w", err)
		}
		if db.Skills == nil {
			db.Skills = []InstalledSkill{}
		}
		return &db, nil
	case 0, 1:
		return migrateV1(data)
	default:
		return nil, fmt.Errorf("installed db version %d is newer than this client supports", probe.Version)
	}
}

func migrateV1(data []byte) (*DB, error) {
	var old struct {
		Skills []v1Skill `json:"skills"`
	}
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, fmt.Errorf("parse v1 installed db: %w", err)
	}
	db := &DB{Version: SchemaVersion, Skills: make([]InstalledSkill, 0, len(old.Skills))}
	for _, s := range old.Skills {
		db.Skills = append(db.Skills, InstalledSkill{
			Name:           s.Name,
			Description:    s.Description,
			Source:         s.Source,
			UpdateStrategy: DefaultUpdateStrategy,
			Agents:         []string{DefaultAgent},
			Global:         false,
			InstalledAt:    s.InstalledAt,
			SHA:            s.SHA,
			Path:           s.Path,
		})
	}
	return db, nil
}

// Save writes the database atomically.
func Save(path string, db *DB) error {
	db.Version = SchemaVersion
	if db.Skills == nil {
		db.Skills = []InstalledSkill{}
	}
	return writeJSON(path, db)
}

// Entries are keyed by (name, source): the same skill name installed from two
// different sources is two installations.

// Find returns the entry with the given name and source, or nil.
func (db *DB) Find(name, source string) *InstalledSkill {
	for i := range db.Skills {
		if db.Skills[i].Name == name && db.Skills[i].Source == source {
			return &db.Skills[i]
		}
	}
	return nil
}

// FindByName returns every entry with the given name, across sources.
func (db *DB) FindByName(name string) []*InstalledSkill {
	var out []*InstalledSkill
	for i := range db.Skills {
		if db.Skills[i].Name == name {
			out = append(out, &db.Skills[i])
		}
	}
	return out
}

// Upsert replaces the entry with the same name and source or appends a new one.
func (db *DB) Upsert(s InstalledSkill) {
	for i := range db.Skills {
		if db.Skills[i].Name == s.Name && db.Skills[i].Source == s.Source {
			db.Skills[i] = s
			return
		}
	}
	db.Skills = append(db.Skills, s)
}

// Remove deletes the entry with the given name and source, reporting whether
// it existed.
func (db *DB) Remove(name, source string) bool {
	for i := range db.Skills {
		if db.Skills[i].Name == name && db.Skills[i].Source == source {
			db.Skills = append(db.Skills[:i], db.Skills[i+1:]...)
			return true
		}
	}
	return false
}

// ── Credentials and settings ──────────────────────────────────────────────────

// Auth is the persisted credential state.
type Auth struct {
	AccessToken      string    `json:"accessToken,omitempty"`
	RefreshToken     string    `json:"refreshToken,omitempty"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt,omitempty"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt,omitempty"`
	Username         string    `json:"username,omitempty"`
}

// Settings are the persisted user preferences.
type Settings struct {
	RegistryURL   string `json:"registryUrl,omitempty"`
	DefaultAgent  string `json:"defaultAgent,omitempty"`
	DefaultGlobal bool   `json:"defaultGlobal,omitempty"`
}

// ConfigDir returns the CLI's config directory, creating it if needed.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	dir := filepath.Join(base, "skilldex")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// LoadAuth reads auth.json from dir; missing file yields zero state.
func LoadAuth(dir string) (*Auth, error) {
	var a Auth
	if err := readJSON(filepath.Join(dir, "auth.json"), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveAuth writes auth.json with owner-only permissions.
func SaveAuth(dir string, a *Auth) error {
	return writeJSONMode(filepath.Join(dir, "auth.json"), a, 0o600)
}

// LoadSettings reads settings.json from dir; missing file yields defaults.
func LoadSettings(dir string) (*Settings, error) {
	var s Settings
	if err := readJSON(filepath.Join(dir, "settings.json"), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSettings writes settings.json.
func SaveSettings(dir string, s *Settings) error {
	return writeJSON(filepath.Join(dir, "settings.json"), s)
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	return writeJSONMode(path, v, 0o644)
}

func writeJSONMode(path string, v any, mode os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}
