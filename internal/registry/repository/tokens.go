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

// TokenRepository provides access to the api_tokens table. Tokens are stored
// hashed; lookups go through the hash.
type TokenRepository struct {
	db *pgxpool.Pool
}

// NewTokenRepository creates a TokenRepository.
func NewTokenRepository(db *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create inserts a token row.
func (r *TokenRepository) Create(ctx context.Context, t *model.ApiToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now().UTC()
	scopes := make([]string, len(t.Scopes))
	for i, s := range t.Scopes {
		scopes[i] = string(s)
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO api_tokens (
			id, token_hash, prefix, subject_type, subject_id, scopes,
			expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.TokenHash, t.Prefix, t.SubjectType, t.SubjectID, scopes,
		t.ExpiresAt, t.CreatedAt)
	return err
}

// FindByHash returns the token row for a raw-token hash, or ErrNotFound.
func (r *TokenRepository) FindByHash(ctx context.Context, hash string) (*model.ApiToken, error) {
	var t model.ApiToken
	var scopes []string
	err := r.db.QueryRow(ctx, `
		SELECT id, token_hash, prefix, subject_type, subject_id, scopes,
		       expires_at, revoked_at, created_at
		FROM api_tokens WHERE token_hash = $1`, hash).Scan(
		&t.ID, &t.TokenHash, &t.Prefix, &t.SubjectType, &t.SubjectID,
		&scopes, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, s := range scopes {
		t.Scopes = append(t.Scopes, model.Scope(s))
	}
	return &t, nil
}

// Revoke marks a token revoked.
func (r *TokenRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE api_tokens SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`,
		id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeBySubject revokes every live token bound to the subject. Used when
// rotating refresh tokens on exchange.
func (r *TokenRepository) RevokeBySubject(ctx context.Context, subjectType model.SubjectType, subjectID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE api_tokens SET revoked_at = now()
		WHERE subject_type = $1 AND subject_id = $2 AND revoked_at IS NULL`,
		subjectType, subjectID)
	return err
}
