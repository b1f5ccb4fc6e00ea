package model

import "time"

// AuthorType distinguishes users from organizations on the source host.
type AuthorType string

const (
	AuthorTypeUser AuthorType = "User"
	AuthorTypeOrg  AuthorType = "Organization"
)

// Author represents a user or organization on the source host, keyed by
// username. Created on first observation during indexing and refreshed
// opportunistically; deleting an author never deletes its skills.
type Author struct {
	Username    string     `json:"username"     db:"username"`
	GithubID    int64      `json:"github_id"    db:"github_id"`
	DisplayName string     `json:"display_name" db:"display_name"`
	AvatarURL   string     `json:"avatar_url"   db:"avatar_url"`
	Bio         string     `json:"bio"          db:"bio"`
	Type        AuthorType `json:"type"         db:"type"`
	SkillsCount int        `json:"skills_count" db:"skills_count"`
	TotalStars  int        `json:"total_stars"  db:"total_stars"`
	UpdatedAt   time.Time  `json:"updated_at"   db:"updated_at"`
}
