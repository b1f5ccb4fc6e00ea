package model

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls who can see a skill.
type Visibility string

const (
	// VisibilityPublic — anyone can see and search the skill.
	VisibilityPublic Visibility = "public"
	// VisibilityUnlisted — anyone with the slug can fetch it; never enumerated in search.
	VisibilityUnlisted Visibility = "unlisted"
	// VisibilityPrivate — enumerated and fetchable only with explicit access.
	VisibilityPrivate Visibility = "private"
)

// SourceType indicates where the canonical SKILL document came from.
type SourceType string

const (
	SourceTypeHosted SourceType = "hosted"
	SourceTypeUpload SourceType = "upload"
)

// Tier is a coarse freshness classification controlling refresh cadence.
type Tier string

const (
	// TierHot — recent activity; full refresh cycle.
	TierHot Tier = "hot"
	// TierCold — no activity for a quarter; reduced cadence.
	TierCold Tier = "cold"
	// TierArchived — source gone or long dormant; excluded from bulk rescoring.
	TierArchived Tier = "archived"
)

// StarSnapshot is a single {date, stars} observation. The per-skill series is
// ordered strictly ascending by D and compressed to at most 20 points.
type StarSnapshot struct {
	D string `json:"d"` // YYYY-MM-DD
	S int    `json:"s"`
}

// Skill is the core registry row for one SKILL.md document.
type Skill struct {
	ID             uuid.UUID      `json:"id"                         db:"id"`
	Slug           string         `json:"slug"                       db:"slug"`
	Name           string         `json:"name"                       db:"name"`
	Description    string         `json:"description"                db:"description"`
	RepoOwner      string         `json:"repo_owner"                 db:"repo_owner"`
	RepoName       string         `json:"repo_name"                  db:"repo_name"`
	SkillPath      string         `json:"skill_path"                 db:"skill_path"` // empty → repository root
	GithubURL      string         `json:"github_url"                 db:"github_url"`
	Stars          int            `json:"stars"                      db:"stars"`
	Forks          int            `json:"forks"                      db:"forks"`
	TrendingScore  float64        `json:"trending_score"             db:"trending_score"`
	IndexedAt      time.Time      `json:"indexed_at"                 db:"indexed_at"`
	UpdatedAt      time.Time      `json:"updated_at"                 db:"updated_at"`
	LastCommitAt   *time.Time     `json:"last_commit_at,omitempty"   db:"last_commit_at"`
	Readme         string         `json:"readme,omitempty"           db:"readme"`
	FileStructure  string         `json:"file_structure,omitempty"   db:"file_structure"` // serialized tree
	StarSnapshots  []StarSnapshot `json:"star_snapshots,omitempty"   db:"star_snapshots"`
	Visibility     Visibility     `json:"visibility"                 db:"visibility"`
	SourceType     SourceType     `json:"source_type"                db:"source_type"`
	Tier           Tier           `json:"tier"                       db:"tier"`
	OwnerID        *uuid.UUID     `json:"owner_id,omitempty"         db:"owner_id"`
	OrgID          *uuid.UUID     `json:"org_id,omitempty"           db:"org_id"`
	ContentHash    string         `json:"content_hash"               db:"content_hash"` // "sha256:<hex>" of the canonical SKILL document
	LastIngestErr  string         `json:"last_ingest_error,omitempty" db:"last_ingest_error"`
	Categories     []string       `json:"categories"                 db:"-"` // category slugs, loaded from skill_categories
}

// Coordinate returns the hosted identity triple. Unique for SourceTypeHosted.
func (s *Skill) Coordinate() (owner, repo, path string) {
	return s.RepoOwner, s.RepoName, s.SkillPath
}

// ObjectKey returns the canonical object-store key for this skill's SKILL.md.
func (s *Skill) ObjectKey() string {
	if s.SourceType == SourceTypeUpload {
		return "skills/" + s.Slug + "/SKILL.md"
	}
	if s.SkillPath == "" {
		return "skills/" + s.RepoOwner + "/" + s.RepoName + "/SKILL.md"
	}
	return "skills/" + s.RepoOwner + "/" + s.RepoName + "/" + s.SkillPath + "/SKILL.md"
}

// Favorite marks a skill as favorited by a user; unique on the pair.
type Favorite struct {
	UserID    uuid.UUID `json:"user_id"    db:"user_id"`
	SkillID   uuid.UUID `json:"skill_id"   db:"skill_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// GranteeType identifies the kind of principal a permission is granted to.
type GranteeType string

const (
	GranteeUser GranteeType = "user"
	GranteeOrg  GranteeType = "org"
)

// SkillPermission grants a user or org access to a private skill.
type SkillPermission struct {
	SkillID     uuid.UUID   `json:"skill_id"             db:"skill_id"`
	GranteeType GranteeType `json:"grantee_type"         db:"grantee_type"`
	GranteeID   uuid.UUID   `json:"grantee_id"           db:"grantee_id"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt   time.Time   `json:"created_at"           db:"created_at"`
}

// Active reports whether the grant is currently usable.
func (p *SkillPermission) Active(now time.Time) bool {
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}

// UserAction is an append-only audit row (download, install, ...).
type UserAction struct {
	ID        uuid.UUID `json:"id"         db:"id"`
	UserID    *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	SkillID   uuid.UUID `json:"skill_id"   db:"skill_id"`
	Action    string    `json:"action"     db:"action"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
