package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
)

// UserRepository provides access to the user_accounts table.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a UserRepository.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = ` id, username, github_id, email, avatar_url, created_at `

func scanUser(row pgx.Row) (*model.UserAccount, error) {
	var u model.UserAccount
	err := row.Scan(&u.ID, &u.Username, &u.GithubID, &u.Email, &u.AvatarURL, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Upsert inserts or refreshes a user keyed by its source-host identity.
func (r *UserRepository) Upsert(ctx context.Context, u *model.UserAccount) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now().UTC()
	return r.db.QueryRow(ctx, `
		INSERT INTO user_accounts (id, username, github_id, email, avatar_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (github_id) DO UPDATE SET
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			avatar_url = EXCLUDED.avatar_url
		RETURNING id, created_at`,
		u.ID, u.Username, u.GithubID, u.Email, u.AvatarURL, u.CreatedAt).
		Scan(&u.ID, &u.CreatedAt)
}

// GetByID returns a user, or ErrNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.UserAccount, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT`+userColumns+`FROM user_accounts WHERE id = $1`, id))
}

// GetByUsername returns a user, or ErrNotFound.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.UserAccount, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT`+userColumns+`FROM user_accounts WHERE username = $1`, username))
}

// OrgIDs returns the organizations the user belongs to.
func (r *UserRepository) OrgIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT org_id FROM org_members WHERE user_id = $1`, userID)
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

// Notify inserts a notification row for the user.
func (r *UserRepository) Notify(ctx context.Context, userID uuid.UUID, kind, payload string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		uuid.New(), userID, kind, payload)
	return err
}
