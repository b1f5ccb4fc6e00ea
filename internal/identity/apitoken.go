package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// token prefixes distinguish API tokens from refresh tokens at a glance.
const (
	apiTokenPrefix     = "sk_"
	refreshTokenPrefix = "sr_"
	visiblePrefixLen   = 8
)

// NewAPIToken generates a random bearer token. It returns the raw value
// (shown to the client exactly once), the SHA-256 hash stored at rest, and
// the short visible prefix kept for display.
func NewAPIToken() (raw, hash, prefix string, err error) {
	return newToken(apiTokenPrefix)
}

// NewRefreshToken generates a random refresh token with the same layout.
func NewRefreshToken() (raw, hash, prefix string, err error) {
	return newToken(refreshTokenPrefix)
}

func newToken(kind string) (raw, hash, prefix string, err error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", "", "", fmt.Errorf("generate token: %w", err)
	}
	raw = kind + base64.RawURLEncoding.EncodeToString(buf[:])
	return raw, HashToken(raw), raw[:visiblePrefixLen], nil
}

// HashToken returns the hex SHA-256 of a raw token — the only form persisted.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
