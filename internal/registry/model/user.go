package model

import (
	"time"

	"github.com/google/uuid"
)

// UserAccount is a registered registry user, linked to a source-host identity.
type UserAccount struct {
	ID        uuid.UUID `json:"id"         db:"id"`
	Username  string    `json:"username"   db:"username"`
	GithubID  int64     `json:"github_id"  db:"github_id"`
	Email     string    `json:"email,omitempty" db:"email"`
	AvatarURL string    `json:"avatar_url,omitempty" db:"avatar_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Organization groups users; skills may be owned by an org.
type Organization struct {
	ID        uuid.UUID `json:"id"         db:"id"`
	Slug      string    `json:"slug"       db:"slug"`
	Name      string    `json:"name"       db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Notification is an in-app message for a user (skill archived, grant
// received, ...). Read state is a timestamp so "unread" needs no extra flag.
type Notification struct {
	ID        uuid.UUID  `json:"id"         db:"id"`
	UserID    uuid.UUID  `json:"user_id"    db:"user_id"`
	Kind      string     `json:"kind"       db:"kind"`
	Payload   string     `json:"payload"    db:"payload"`
	ReadAt    *time.Time `json:"read_at,omitempty" db:"read_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
