package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActionRepository appends to the user_actions audit table.
type ActionRepository struct {
	db *pgxpool.Pool
}

// NewActionRepository creates an ActionRepository.
func NewActionRepository(db *pgxpool.Pool) *ActionRepository {
	return &ActionRepository{db: db}
}

// Record appends one action row. userID may be nil for anonymous downloads.
func (r *ActionRepository) Record(ctx context.Context, userID *uuid.UUID, skillID uuid.UUID, action string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_actions (id, user_id, skill_id, action, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		uuid.New(), userID, skillID, action)
	return err
}

// CountForSkill returns how many times action was recorded for the skill.
func (r *ActionRepository) CountForSkill(ctx context.Context, skillID uuid.UUID, action string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM user_actions
		WHERE skill_id = $1 AND action = $2`, skillID, action).Scan(&n)
	return n, err
}
