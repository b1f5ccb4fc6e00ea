package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
)

// AuthorRepository provides access to the authors table.
type AuthorRepository struct {
	db *pgxpool.Pool
}

// NewAuthorRepository creates an AuthorRepository.
func NewAuthorRepository(db *pgxpool.Pool) *AuthorRepository {
	return &AuthorRepository{db: db}
}

// GetByUsername returns an author, or ErrNotFound.
func (r *AuthorRepository) GetByUsername(ctx context.Context, username string) (*model.Author, error) {
	var a model.Author
	err := r.db.QueryRow(ctx, `
		SELECT username, github_id, display_name, avatar_url, bio, type,
		       skills_count, total_stars, updated_at
		FROM authors WHERE username = $1`, username).Scan(
		&a.Username, &a.GithubID, &a.DisplayName, &a.AvatarURL, &a.Bio,
		&a.Type, &a.SkillsCount, &a.TotalStars, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Refresh updates profile fields without touching denormalized counts.
func (r *AuthorRepository) Refresh(ctx context.Context, a *model.Author) error {
	_, err := r.db.Exec(ctx, `
		UPDATE authors
		SET github_id = $2, display_name = $3, avatar_url = $4, bio = $5,
		    type = $6, updated_at = now()
		WHERE username = $1`,
		a.Username, a.GithubID, a.DisplayName, a.AvatarURL, a.Bio, a.Type)
	return err
}

// upsertAuthorTx inserts or refreshes an author inside an existing
// transaction. The skills_count increments only when the caller just created
// a skill row for this author; total_stars shifts by the delta the caller
// observed.
func upsertAuthorTx(ctx context.Context, tx pgx.Tx, a *model.Author, newSkill bool, stars int) error {
	inc := 0
	if newSkill {
		inc = 1
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO authors (
			username, github_id, display_name, avatar_url, bio, type,
			skills_count, total_stars, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (username) DO UPDATE SET
			github_id = EXCLUDED.github_id,
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			bio = EXCLUDED.bio,
			type = EXCLUDED.type,
			skills_count = authors.skills_count + $9,
			updated_at = now()`,
		a.Username, a.GithubID, a.DisplayName, a.AvatarURL, a.Bio, a.Type,
		inc, stars, inc)
	if err != nil {
		return fmt.Errorf("upsert author: %w", err)
	}
	return nil
}

// RecomputeTotals rewrites every author's denormalized star totals from the
// live skill rows. Run after ranking updates stars in bulk.
func (r *AuthorRepository) RecomputeTotals(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		UPDATE authors a SET total_stars = COALESCE(t.total, 0)
		FROM (
			SELECT repo_owner, sum(stars) AS total
			FROM skills GROUP BY repo_owner
		) t
		WHERE a.username = t.repo_owner`)
	return err
}
