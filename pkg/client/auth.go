package client

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

// AuthSession is the device-side view of a pending auth session.
type AuthSession struct {
	SessionID string `json:"session_id"`
	ExpiresIn int    `json:"expires_in"`

	// codeVerifier is held locally until the exchange; it never travels
	// with the init request.
	codeVerifier string
}

// CodeVerifier returns the PKCE verifier generated at init time.
func (s *AuthSession) CodeVerifier() string { return s.codeVerifier }

// TokenPair is the device-auth exchange result.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	User             *User  `json:"user,omitempty"`
}

// User is the account summary attached to an exchange response.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// InitAuth starts a device-auth session with a fresh PKCE challenge. The
// callback URL receives the auth code once the user approves in-browser.
func (c *Client) InitAuth(ctx context.Context, callbackURL, state, clientInfo string) (*AuthSession, error) {
	verifier, challenge, err := newPKCEPair()
	if err != nil {
		return nil, err
	}
	body, _ := json.Marshal(map[string]string{
		"callback_url":          callbackURL,
		"state":                 state,
		"client_info":           clientInfo,
		"code_challenge":        challenge,
		"code_challenge_method": "S256",
	})
	resp, err := c.do(ctx, http.MethodPost, "/auth/init", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var session AuthSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	session.codeVerifier = verifier
	return &session, nil
}

// ExchangeCode redeems the auth code delivered to the callback for a token
// pair, proving possession of the PKCE verifier. On success the client keeps
// the access token for subsequent requests.
func (c *Client) ExchangeCode(ctx context.Context, session *AuthSession, code string) (*TokenPair, error) {
	body, _ := json.Marshal(map[string]string{
		"code":          code,
		"session_id":    session.SessionID,
		"code_verifier": session.codeVerifier,
	})
	return c.tokenRequest(ctx, "/auth/token", body)
}

// RefreshToken rotates the token pair using a stored refresh token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	body, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
	return c.tokenRequest(ctx, "/auth/refresh", body)
}

func (c *Client) tokenRequest(ctx context.Context, path string, body []byte) (*TokenPair, error) {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("decode token pair: %w", err)
	}
	c.SetBearerToken(pair.AccessToken)
	return &pair, nil
}

// newPKCEPair generates a random verifier and its S256 challenge.
func newPKCEPair() (verifier, challenge string, err error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", "", fmt.Errorf("generate pkce verifier: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(buf[:])
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}
