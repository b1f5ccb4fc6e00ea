package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
)

// ErrBadState is returned when a session transition is attempted from a
// state that does not allow it.
var ErrBadState = errors.New("session is not in a state that allows this transition")

// SessionRepository provides access to the cli_auth_sessions table. State
// transitions are conditional UPDATEs, so a lost race surfaces as ErrBadState
// rather than a double transition.
type SessionRepository struct {
	db *pgxpool.Pool
}

// NewSessionRepository creates a SessionRepository.
func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a pending session.
func (r *SessionRepository) Create(ctx context.Context, s *model.AuthSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.State = model.SessionPending
	s.CreatedAt = time.Now().UTC()
	_, err := r.db.Exec(ctx, `
		INSERT INTO cli_auth_sessions (
			id, state, code, callback_url, client_info, code_challenge,
			code_challenge_method, user_id, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.State, s.Code, s.CallbackURL, s.ClientInfo, s.CodeChallenge,
		s.CodeChallengeMethod, s.UserID, s.CreatedAt, s.ExpiresAt)
	return err
}

// Get returns a session by id, lazily expiring it if the TTL elapsed.
func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*model.AuthSession, error) {
	s, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Expired(time.Now()) {
		if err := r.setState(ctx, id, s.State, model.SessionExpired); err == nil {
			s.State = model.SessionExpired
		}
	}
	return s, nil
}

func (r *SessionRepository) get(ctx context.Context, id uuid.UUID) (*model.AuthSession, error) {
	var s model.AuthSession
	err := r.db.QueryRow(ctx, `
		SELECT id, state, code, callback_url, client_info, code_challenge,
		       code_challenge_method, user_id, created_at, expires_at,
		       approved_at, exchanged_at
		FROM cli_auth_sessions WHERE id = $1`, id).Scan(
		&s.ID, &s.State, &s.Code, &s.CallbackURL, &s.ClientInfo,
		&s.CodeChallenge, &s.CodeChallengeMethod, &s.UserID, &s.CreatedAt,
		&s.ExpiresAt, &s.ApprovedAt, &s.ExchangedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Approve moves pending → approved and binds the approving user. The
// approval restarts the 5-minute exchange window.
func (r *SessionRepository) Approve(ctx context.Context, id, userID uuid.UUID, newExpiry time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE cli_auth_sessions
		SET state = 'approved', user_id = $2, approved_at = now(), expires_at = $3
		WHERE id = $1 AND state = 'pending' AND expires_at > now()`,
		id, userID, newExpiry)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBadState
	}
	return nil
}

// Deny moves pending → denied.
func (r *SessionRepository) Deny(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE cli_auth_sessions SET state = 'denied'
		WHERE id = $1 AND state = 'pending'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBadState
	}
	return nil
}

// Exchange moves approved → exchanged exactly once, and only while the code
// matches and the window is open. A second exchange loses the conditional
// UPDATE and gets ErrBadState.
func (r *SessionRepository) Exchange(ctx context.Context, id uuid.UUID, code string) (*model.AuthSession, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE cli_auth_sessions
		SET state = 'exchanged', exchanged_at = now()
		WHERE id = $1 AND code = $2 AND state = 'approved' AND expires_at > now()`,
		id, code)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrBadState
	}
	return r.get(ctx, id)
}

// DeleteExpired removes terminal sessions older than cutoff.
func (r *SessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM cli_auth_sessions
		WHERE created_at < $1
		  AND state IN ('denied', 'exchanged', 'expired')`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) setState(ctx context.Context, id uuid.UUID, from, to model.SessionState) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE cli_auth_sessions SET state = $3
		WHERE id = $1 AND state = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBadState
	}
	return nil
}
