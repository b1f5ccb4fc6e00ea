package model

import (
	"time"

	"github.com/google/uuid"
)

// Scope is an API token capability.
type Scope string

const (
	ScopeRead    Scope = "read"
	ScopeWrite   Scope = "write"
	ScopePublish Scope = "publish"
)

// ValidScope reports whether s is one of the known scopes.
func ValidScope(s Scope) bool {
	switch s {
	case ScopeRead, ScopeWrite, ScopePublish:
		return true
	}
	return false
}

// SubjectType identifies what kind of principal a token is bound to.
type SubjectType string

const (
	SubjectUser SubjectType = "user"
	SubjectOrg  SubjectType = "org"
)

// ApiToken is a bearer token stored hashed at rest. Only the Prefix (the
// first characters of the raw value) is kept in the clear, for display.
type ApiToken struct {
	ID          uuid.UUID   `json:"id"                   db:"id"`
	TokenHash   string      `json:"-"                    db:"token_hash"`
	Prefix      string      `json:"prefix"               db:"prefix"`
	SubjectType SubjectType `json:"subject_type"         db:"subject_type"`
	SubjectID   uuid.UUID   `json:"subject_id"           db:"subject_id"`
	Scopes      []Scope     `json:"scopes"               db:"scopes"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty" db:"expires_at"`
	RevokedAt   *time.Time  `json:"revoked_at,omitempty" db:"revoked_at"`
	CreatedAt   time.Time   `json:"created_at"           db:"created_at"`
}

// Usable reports whether the token is neither revoked nor expired.
func (t *ApiToken) Usable(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	return t.ExpiresAt == nil || t.ExpiresAt.After(now)
}

// HasScope reports whether the token carries the given scope.
func (t *ApiToken) HasScope(s Scope) bool {
	for _, have := range t.Scopes {
		if have == s {
			return true
		}
	}
	return false
}

// SessionState is the device-auth session lifecycle state.
//
//	pending ──(approve)──▶ approved ──(exchange)──▶ exchanged
//	pending ──(deny)─────▶ denied
//	pending/approved ──(5 min)──▶ expired
type SessionState string

const (
	SessionPending   SessionState = "pending"
	SessionApproved  SessionState = "approved"
	SessionDenied    SessionState = "denied"
	SessionExchanged SessionState = "exchanged"
	SessionExpired   SessionState = "expired"
)

// AuthSession is one CLI device-auth attempt. The Code is single-use with a
// 5-minute TTL; PKCE material is checked at exchange time.
type AuthSession struct {
	ID                  uuid.UUID    `json:"id"                    db:"id"`
	State               SessionState `json:"state"                 db:"state"`
	Code                string       `json:"-"                     db:"code"`
	CallbackURL         string       `json:"callback_url"          db:"callback_url"`
	ClientInfo          string       `json:"client_info,omitempty" db:"client_info"`
	CodeChallenge       string       `json:"-"                     db:"code_challenge"`
	CodeChallengeMethod string       `json:"-"                     db:"code_challenge_method"` // "S256" or "plain"
	UserID              *uuid.UUID   `json:"user_id,omitempty"     db:"user_id"`
	CreatedAt           time.Time    `json:"created_at"            db:"created_at"`
	ExpiresAt           time.Time    `json:"expires_at"            db:"expires_at"`
	ApprovedAt          *time.Time   `json:"approved_at,omitempty" db:"approved_at"`
	ExchangedAt         *time.Time   `json:"exchanged_at,omitempty" db:"exchanged_at"`
}

// Expired reports whether the session TTL has elapsed. Only pending and
// approved sessions can expire; terminal states stay terminal.
func (s *AuthSession) Expired(now time.Time) bool {
	if s.State != SessionPending && s.State != SessionApproved {
		return false
	}
	return now.After(s.ExpiresAt)
}
