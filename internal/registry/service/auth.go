package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skilldex-dev/skilldex/internal/identity"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
	"github.com/skilldex-dev/skilldex/internal/registry/repository"
	"go.uber.org/zap"
)

const (
	// SessionTTL is the device-auth window: pending sessions expire after
	// it, and approval restarts it for the exchange.
	SessionTTL = 5 * time.Minute

	// DefaultRefreshTTL is the refresh-token lifetime.
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// cliScopes are granted to tokens minted through the device-auth flow.
var cliScopes = []model.Scope{model.ScopeRead, model.ScopeWrite}

// sessionRepo is the persistence interface for device-auth sessions.
// *repository.SessionRepository satisfies this interface.
type sessionRepo interface {
	Create(ctx context.Context, s *model.AuthSession) error
	Get(ctx context.Context, id uuid.UUID) (*model.AuthSession, error)
	Approve(ctx context.Context, id, userID uuid.UUID, newExpiry time.Time) error
	Deny(ctx context.Context, id uuid.UUID) error
	Exchange(ctx context.Context, id uuid.UUID, code string) (*model.AuthSession, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// tokenRepo is the persistence interface for bearer-token rows.
type tokenRepo interface {
	Create(ctx context.Context, t *model.ApiToken) error
	FindByHash(ctx context.Context, hash string) (*model.ApiToken, error)
	Revoke(ctx context.Context, id uuid.UUID) error
}

// userRepo resolves the approving user for the exchange response.
type userRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.UserAccount, error)
}

// AuthService drives the device-auth session flow and token lifecycle.
type AuthService struct {
	sessions   sessionRepo
	tokens     tokenRepo
	users      userRepo
	issuer     *identity.TokenIssuer
	refreshTTL time.Duration
	logger     *zap.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(sessions sessionRepo, tokens tokenRepo, users userRepo, issuer *identity.TokenIssuer, logger *zap.Logger) *AuthService {
	return &AuthService{
		sessions:   sessions,
		tokens:     tokens,
		users:      users,
		issuer:     issuer,
		refreshTTL: DefaultRefreshTTL,
		logger:     logger,
	}
}

// SetRefreshTTL overrides the refresh-token lifetime.
func (s *AuthService) SetRefreshTTL(ttl time.Duration) {
	if ttl > 0 {
		s.refreshTTL = ttl
	}
}

// InitParams are the device's session-init inputs.
type InitParams struct {
	CallbackURL         string
	State               string
	ClientInfo          string
	CodeChallenge       string
	CodeChallengeMethod string
}

// InitResult identifies the created session.
type InitResult struct {
	SessionID uuid.UUID
	ExpiresIn int // seconds
}

// Init creates a pending session. The auth code is minted here and released
// to the browser at approval time; the device never sees it until the
// callback delivers it.
func (s *AuthService) Init(ctx context.Context, p InitParams) (*InitResult, error) {
	if p.CallbackURL == "" {
		return nil, fmt.Errorf("%w: callback_url is required", ErrValidation)
	}
	if p.CodeChallenge != "" && !identity.ValidPKCEMethod(p.CodeChallengeMethod) {
		return nil, fmt.Errorf("%w: unsupported code_challenge_method", ErrValidation)
	}

	code, err := newAuthCode()
	if err != nil {
		return nil, err
	}
	session := &model.AuthSession{
		Code:                code,
		CallbackURL:         p.CallbackURL,
		ClientInfo:          p.ClientInfo,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: p.CodeChallengeMethod,
		ExpiresAt:           time.Now().UTC().Add(SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("device auth session created",
		zap.String("session_id", session.ID.String()),
		zap.Bool("pkce", p.CodeChallenge != ""),
	)
	return &InitResult{SessionID: session.ID, ExpiresIn: int(SessionTTL.Seconds())}, nil
}

// ApprovalResult carries what the browser needs to complete the callback.
type ApprovalResult struct {
	Code        string
	CallbackURL string
}

// Approve moves a pending session to approved on behalf of the signed-in
// user, restarting the 5-minute window for the exchange.
func (s *AuthService) Approve(ctx context.Context, sessionID, userID uuid.UUID) (*ApprovalResult, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, mapSessionErr(err)
	}
	if session.State != model.SessionPending {
		return nil, fmt.Errorf("%w: session is %s", ErrConflict, session.State)
	}
	newExpiry := time.Now().UTC().Add(SessionTTL)
	if err := s.sessions.Approve(ctx, sessionID, userID, newExpiry); err != nil {
		return nil, mapSessionErr(err)
	}
	return &ApprovalResult{Code: session.Code, CallbackURL: session.CallbackURL}, nil
}

// Deny moves a pending session to denied.
func (s *AuthService) Deny(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.sessions.Deny(ctx, sessionID); err != nil {
		return mapSessionErr(err)
	}
	return nil
}

// TokenPair is the device-auth exchange result.
type TokenPair struct {
	AccessToken      string
	ExpiresIn        int // seconds
	RefreshToken     string
	RefreshExpiresIn int // seconds
	User             *model.UserAccount
}

// Exchange redeems an approved session's code for a token pair. The code is
// single-use: the conditional state transition in the session store loses a
// second attempt, and the PKCE verifier must match the stored challenge.
func (s *AuthService) Exchange(ctx context.Context, sessionID uuid.UUID, code, verifier string) (*TokenPair, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, mapSessionErr(err)
	}
	if err := identity.VerifyPKCE(session.CodeChallenge, session.CodeChallengeMethod, verifier); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	session, err = s.sessions.Exchange(ctx, sessionID, code)
	if err != nil {
		return nil, mapSessionErr(err)
	}
	if session.UserID == nil {
		return nil, fmt.Errorf("exchanged session %s has no user", sessionID)
	}

	pair, err := s.mint(ctx, *session.UserID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("device auth exchange complete",
		zap.String("session_id", sessionID.String()),
		zap.String("user_id", session.UserID.String()),
	)
	return pair, nil
}

// Refresh rotates the token pair: the presented refresh token is revoked and
// a new pair is issued for the same subject.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string) (*TokenPair, error) {
	if !strings.HasPrefix(rawRefresh, "sr_") {
		return nil, fmt.Errorf("%w: not a refresh token", ErrUnauthorized)
	}
	row, err := s.tokens.FindByHash(ctx, identity.HashToken(rawRefresh))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown refresh token", ErrUnauthorized)
		}
		return nil, err
	}
	if !row.Usable(time.Now()) {
		return nil, fmt.Errorf("%w: refresh token revoked or expired", ErrUnauthorized)
	}
	if err := s.tokens.Revoke(ctx, row.ID); err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	return s.mint(ctx, row.SubjectID)
}

// mint issues a fresh access JWT plus a stored refresh token for the user.
func (s *AuthService) mint(ctx context.Context, userID uuid.UUID) (*TokenPair, error) {
	scopes := make([]string, len(cliScopes))
	for i, sc := range cliScopes {
		scopes[i] = string(sc)
	}
	accessToken, err := s.issuer.Issue(userID, scopes)
	if err != nil {
		return nil, err
	}

	rawRefresh, hash, prefix, err := identity.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	refreshExpiry := time.Now().UTC().Add(s.refreshTTL)
	if err := s.tokens.Create(ctx, &model.ApiToken{
		TokenHash:   hash,
		Prefix:      prefix,
		SubjectType: model.SubjectUser,
		SubjectID:   userID,
		Scopes:      cliScopes,
		ExpiresAt:   &refreshExpiry,
	}); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	pair := &TokenPair{
		AccessToken:      accessToken,
		ExpiresIn:        int(s.issuer.TTL().Seconds()),
		RefreshToken:     rawRefresh,
		RefreshExpiresIn: int(s.refreshTTL.Seconds()),
	}
	if s.users != nil {
		if user, err := s.users.GetByID(ctx, userID); err == nil {
			pair.User = user
		}
	}
	return pair, nil
}

// PurgeSessions removes terminal sessions older than a day. Run on a schedule.
func (s *AuthService) PurgeSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, time.Now().Add(-24*time.Hour))
}

// newAuthCode mints an unguessable single-use approval code.
func newAuthCode() (string, error) {
	var buf [20]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate auth code: %w", err)
	}
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf[:])), nil
}

func mapSessionErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrBadState):
		return fmt.Errorf("%w: session does not allow this transition", ErrConflict)
	}
	return err
}
