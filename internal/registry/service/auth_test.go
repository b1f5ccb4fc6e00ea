package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skilldex-dev/skilldex/internal/identity"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
	"github.com/skilldex-dev/skilldex/internal/registry/repository"
	"go.uber.org/zap"
)

type stubSessions struct {
	byID map[uuid.UUID]*model.AuthSession
}

func newStubSessions() *stubSessions {
	return &stubSessions{byID: make(map[uuid.UUID]*model.AuthSession)}
}

func (r *stubSessions) Create(_ context.Context, s *model.AuthSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.State = model.SessionPending
	cp := *s
	r.byID[s.ID] = &cp
	return nil
}

func (r *stubSessions) Get(_ context.Context, id uuid.UUID) (*model.AuthSession, error) {
	s, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *stubSessions) Approve(_ context.Context, id, userID uuid.UUID, newExpiry time.Time) error {
	s, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if s.State != model.SessionPending {
		return repository.ErrBadState
	}
	s.State = model.SessionApproved
	s.UserID = &userID
	s.ExpiresAt = newExpiry
	return nil
}

func (r *stubSessions) Deny(_ context.Context, id uuid.UUID) error {
	s, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if s.State != model.SessionPending {
		return repository.ErrBadState
	}
	s.State = model.SessionDenied
	return nil
}

func (r *stubSessions) Exchange(_ context.Context, id uuid.UUID, code string) (*model.AuthSession, error) {
	s, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if s.State != model.SessionApproved || s.Code != code {
		return nil, repository.ErrBadState
	}
	s.State = model.SessionExchanged
	cp := *s
	return &cp, nil
}

func (r *stubSessions) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, s := range r.byID {
		if s.ExpiresAt.Before(cutoff) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

type stubTokens struct {
	byHash map[string]*model.ApiToken
}

func newStubTokens() *stubTokens {
	return &stubTokens{byHash: make(map[string]*model.ApiToken)}
}

func (r *stubTokens) Create(_ context.Context, t *model.ApiToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	cp := *t
	r.byHash[t.TokenHash] = &cp
	return nil
}

func (r *stubTokens) FindByHash(_ context.Context, hash string) (*model.ApiToken, error) {
	t, ok := r.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *stubTokens) Revoke(_ context.Context, id uuid.UUID) error {
	for _, t := range r.byHash {
		if t.ID == id {
			now := time.Now().UTC()
			t.RevokedAt = &now
			return nil
		}
	}
	return repository.ErrNotFound
}

type stubUsers struct {
	byID map[uuid.UUID]*model.UserAccount
}

func (r *stubUsers) GetByID(_ context.Context, id uuid.UUID) (*model.UserAccount, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func testAuthService() (*AuthService, *stubSessions, *stubTokens, uuid.UUID) {
	userID := uuid.New()
	sessions := newStubSessions()
	tokens := newStubTokens()
	users := &stubUsers{byID: map[uuid.UUID]*model.UserAccount{
		userID: {ID: userID, Username: "octocat"},
	}}
	issuer := identity.NewTokenIssuer([]byte("test-secret"), "https://registry.test", time.Hour)
	return NewAuthService(sessions, tokens, users, issuer, zap.NewNop()), sessions, tokens, userID
}

func s256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func TestInit(t *testing.T) {
	svc, sessions, _, _ := testAuthService()
	ctx := context.Background()

	if _, err := svc.Init(ctx, InitParams{}); !errors.Is(err, ErrValidation) {
		t.Errorf("missing callback: %v", err)
	}
	if _, err := svc.Init(ctx, InitParams{
		CallbackURL:         "http://127.0.0.1:8423/callback",
		CodeChallenge:       "x",
		CodeChallengeMethod: "md5",
	}); !errors.Is(err, ErrValidation) {
		t.Errorf("bad challenge method: %v", err)
	}

	res, err := svc.Init(ctx, InitParams{CallbackURL: "http://127.0.0.1:8423/callback", State: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ExpiresIn != int(SessionTTL.Seconds()) {
		t.Errorf("ExpiresIn: %d", res.ExpiresIn)
	}
	s := sessions.byID[res.SessionID]
	if s == nil || s.State != model.SessionPending || s.Code == "" {
		t.Errorf("session: %+v", s)
	}
}

func TestApprove(t *testing.T) {
	svc, sessions, _, userID := testAuthService()
	ctx := context.Background()

	res, err := svc.Init(ctx, InitParams{CallbackURL: "http://127.0.0.1:8423/callback"})
	if err != nil {
		t.Fatal(err)
	}

	approval, err := svc.Approve(ctx, res.SessionID, userID)
	if err != nil {
		t.Fatal(err)
	}
	if approval.Code != sessions.byID[res.SessionID].Code {
		t.Error("approval must release the session code")
	}
	if approval.CallbackURL != "http://127.0.0.1:8423/callback" {
		t.Errorf("callback: %q", approval.CallbackURL)
	}

	// Only pending sessions can be approved.
	if _, err := svc.Approve(ctx, res.SessionID, userID); !errors.Is(err, ErrConflict) {
		t.Errorf("second approve: %v", err)
	}
	if _, err := svc.Approve(ctx, uuid.New(), userID); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown session: %v", err)
	}
}

func TestExchange(t *testing.T) {
	svc, _, _, userID := testAuthService()
	ctx := context.Background()
	verifier := "correct-horse-battery-staple-and-then-some"

	res, err := svc.Init(ctx, InitParams{
		CallbackURL:         "http://127.0.0.1:8423/callback",
		CodeChallenge:       s256Challenge(verifier),
		CodeChallengeMethod: "S256",
	})
	if err != nil {
		t.Fatal(err)
	}
	approval, err := svc.Approve(ctx, res.SessionID, userID)
	if err != nil {
		t.Fatal(err)
	}

	// Wrong verifier is rejected before the state transition.
	if _, err := svc.Exchange(ctx, res.SessionID, approval.Code, "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong verifier: %v", err)
	}

	pair, err := svc.Exchange(ctx, res.SessionID, approval.Code, verifier)
	if err != nil {
		t.Fatal(err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Errorf("pair: %+v", pair)
	}
	if pair.User == nil || pair.User.Username != "octocat" {
		t.Errorf("user: %+v", pair.User)
	}

	// The access token is a verifiable JWT for the approving user.
	claims, err := svc.issuer.Verify(pair.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != userID.String() {
		t.Errorf("subject: %q", claims.UserID)
	}

	// The code is single-use.
	if _, err := svc.Exchange(ctx, res.SessionID, approval.Code, verifier); !errors.Is(err, ErrConflict) {
		t.Errorf("second exchange: %v", err)
	}
}

func TestExchange_wrongCode(t *testing.T) {
	svc, _, _, userID := testAuthService()
	ctx := context.Background()

	res, err := svc.Init(ctx, InitParams{CallbackURL: "http://127.0.0.1:8423/callback"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Approve(ctx, res.SessionID, userID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Exchange(ctx, res.SessionID, "bogus-code", ""); !errors.Is(err, ErrConflict) {
		t.Errorf("wrong code: %v", err)
	}
}

func TestRefresh(t *testing.T) {
	svc, _, tokens, userID := testAuthService()
	ctx := context.Background()

	res, err := svc.Init(ctx, InitParams{CallbackURL: "http://127.0.0.1:8423/callback"})
	if err != nil {
		t.Fatal(err)
	}
	approval, err := svc.Approve(ctx, res.SessionID, userID)
	if err != nil {
		t.Fatal(err)
	}
	pair, err := svc.Exchange(ctx, res.SessionID, approval.Code, "")
	if err != nil {
		t.Fatal(err)
	}

	rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Error("refresh must rotate the token")
	}

	// The presented token is revoked on rotation.
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("reused refresh token: %v", err)
	}

	if _, err := svc.Refresh(ctx, "sk_not-a-refresh-token"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-refresh prefix: %v", err)
	}
	if _, err := svc.Refresh(ctx, "sr_unknown"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("unknown refresh token: %v", err)
	}

	// The stored row carries only the hash with a visible prefix.
	row, err := tokens.FindByHash(ctx, identity.HashToken(rotated.RefreshToken))
	if err != nil {
		t.Fatal(err)
	}
	if row.Prefix != rotated.RefreshToken[:len(row.Prefix)] {
		t.Errorf("prefix: %q", row.Prefix)
	}
}

func TestPurgeSessions(t *testing.T) {
	svc, sessions, _, _ := testAuthService()
	ctx := context.Background()

	res, err := svc.Init(ctx, InitParams{CallbackURL: "http://127.0.0.1:8423/callback"})
	if err != nil {
		t.Fatal(err)
	}
	sessions.byID[res.SessionID].ExpiresAt = time.Now().Add(-48 * time.Hour)

	n, err := svc.PurgeSessions(ctx)
	if err != nil || n != 1 {
		t.Errorf("purged %d, %v", n, err)
	}
}
