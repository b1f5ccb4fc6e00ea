package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
)

// PermissionRepository resolves private-skill access: explicit grants,
// ownership, and org membership.
type PermissionRepository struct {
	db *pgxpool.Pool
}

// NewPermissionRepository creates a PermissionRepository.
func NewPermissionRepository(db *pgxpool.Pool) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// Grant inserts or refreshes a permission row.
func (r *PermissionRepository) Grant(ctx context.Context, p *model.SkillPermission) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO skill_permissions (skill_id, grantee_type, grantee_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (skill_id, grantee_type, grantee_id)
		DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		p.SkillID, p.GranteeType, p.GranteeID, p.ExpiresAt)
	return err
}

// Revoke deletes a permission row.
func (r *PermissionRepository) Revoke(ctx context.Context, skillID uuid.UUID, granteeType model.GranteeType, granteeID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM skill_permissions
		WHERE skill_id = $1 AND grantee_type = $2 AND grantee_id = $3`,
		skillID, granteeType, granteeID)
	return err
}

// AccessibleSkillIDs returns the private skills the user may see: owned
// directly, owned by an org the user belongs to, or covered by an active
// grant to the user or one of their orgs.
func (r *PermissionRepository) AccessibleSkillIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT s.id FROM skills s
		WHERE s.visibility = 'private' AND (
			s.owner_id = $1
			OR s.org_id IN (SELECT org_id FROM org_members WHERE user_id = $1)
			OR EXISTS (
				SELECT 1 FROM skill_permissions p
				WHERE p.skill_id = s.id
				  AND (p.expires_at IS NULL OR p.expires_at > now())
				  AND (
					(p.grantee_type = 'user' AND p.grantee_id = $1)
					OR (p.grantee_type = 'org' AND p.grantee_id IN (
						SELECT org_id FROM org_members WHERE user_id = $1))
				  )
			)
		)`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsOrgMember reports whether the user belongs to the org.
func (r *PermissionRepository) IsOrgMember(ctx context.Context, userID, orgID uuid.UUID) (bool, error) {
	var member bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM org_members WHERE user_id = $1 AND org_id = $2
		)`, userID, orgID).Scan(&member)
	return member, err
}

// HasGrant reports whether an active grant covers (skill, user), directly or
// through one of the user's orgs.
func (r *PermissionRepository) HasGrant(ctx context.Context, skillID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM skill_permissions p
			WHERE p.skill_id = $1
			  AND (p.expires_at IS NULL OR p.expires_at > now())
			  AND (
				(p.grantee_type = 'user' AND p.grantee_id = $2)
				OR (p.grantee_type = 'org' AND p.grantee_id IN (
					SELECT org_id FROM org_members WHERE user_id = $2))
			  )
		)`, skillID, userID).Scan(&ok)
	return ok, err
}
