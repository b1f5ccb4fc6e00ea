package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FavoriteRepository provides access to the favorites table.
type FavoriteRepository struct {
	db *pgxpool.Pool
}

// NewFavoriteRepository creates a FavoriteRepository.
func NewFavoriteRepository(db *pgxpool.Pool) *FavoriteRepository {
	return &FavoriteRepository{db: db}
}

// Add records a favorite; adding twice is a no-op.
func (r *FavoriteRepository) Add(ctx context.Context, userID, skillID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO favorites (user_id, skill_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id, skill_id) DO NOTHING`, userID, skillID)
	return err
}

// Remove deletes a favorite; removing a missing one is a no-op.
func (r *FavoriteRepository) Remove(ctx context.Context, userID, skillID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND skill_id = $2`,
		userID, skillID)
	return err
}

// Exists reports whether the user has favorited the skill.
func (r *FavoriteRepository) Exists(ctx context.Context, userID, skillID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM favorites WHERE user_id = $1 AND skill_id = $2
		)`, userID, skillID).Scan(&exists)
	return exists, err
}

// ListSkillIDs returns the ids of skills the user has favorited.
func (r *FavoriteRepository) ListSkillIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT skill_id FROM favorites
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
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
