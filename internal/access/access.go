// Package access implements the visibility rules gating the read API:
// public skills are open, unlisted ones need the slug, private ones need an
// explicit relationship between the accessor and the skill.
package access

import (
	"context"

	"github.com/google/uuid"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
)

// Accessor is the principal making a request. The zero value is anonymous.
type Accessor struct {
	UserID *uuid.UUID
	OrgIDs []uuid.UUID
	Scopes []model.Scope
}

// Anonymous reports whether no authenticated subject is attached.
func (a *Accessor) Anonymous() bool {
	return a == nil || a.UserID == nil
}

// HasScope reports whether the accessor carries the scope. Anonymous
// accessors carry none.
func (a *Accessor) HasScope(s model.Scope) bool {
	if a == nil {
		return false
	}
	for _, have := range a.Scopes {
		if have == s {
			return true
		}
	}
	return false
}

// GrantChecker resolves explicit permission rows and org membership.
type GrantChecker interface {
	HasGrant(ctx context.Context, skillID, userID uuid.UUID) (bool, error)
	IsOrgMember(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
	AccessibleSkillIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// Checker answers per-skill visibility questions.
type Checker struct {
	grants GrantChecker
}

// NewChecker creates a Checker.
func NewChecker(grants GrantChecker) *Checker {
	return &Checker{grants: grants}
}

// CanView reports whether the accessor may fetch the skill at all.
// Public and unlisted skills are viewable by anyone holding the slug;
// private ones require ownership, org membership, or an active grant.
func (c *Checker) CanView(ctx context.Context, acc *Accessor, s *model.Skill) (bool, error) {
	switch s.Visibility {
	case model.VisibilityPublic, model.VisibilityUnlisted:
		return true, nil
	case model.VisibilityPrivate:
	default:
		return false, nil
	}

	if acc.Anonymous() {
		return false, nil
	}
	userID := *acc.UserID

	if s.OwnerID != nil && *s.OwnerID == userID {
		return true, nil
	}
	if s.OrgID != nil {
		member, err := c.grants.IsOrgMember(ctx, userID, *s.OrgID)
		if err != nil {
			return false, err
		}
		if member {
			return true, nil
		}
	}
	return c.grants.HasGrant(ctx, s.ID, userID)
}

// SearchFilter resolves the parameters the repository needs to push the
// visibility rules into the search query. Anonymous accessors see only
// public rows; authenticated ones additionally see their own unlisted skills
// and, when includePrivate is set, the private ids they can access.
func (c *Checker) SearchFilter(ctx context.Context, acc *Accessor, includePrivate bool) (ownerID *uuid.UUID, accessibleIDs []uuid.UUID, err error) {
	if acc.Anonymous() {
		return nil, nil, nil
	}
	ownerID = acc.UserID
	if includePrivate && acc.HasScope(model.ScopeRead) {
		accessibleIDs, err = c.grants.AccessibleSkillIDs(ctx, *acc.UserID)
		if err != nil {
			return nil, nil, err
		}
	}
	return ownerID, accessibleIDs, nil
}
