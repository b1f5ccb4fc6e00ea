package identity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// PKCE challenge methods accepted at session init.
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// ValidPKCEMethod reports whether m is a supported challenge method.
func ValidPKCEMethod(m string) bool {
	return m == PKCEMethodS256 || m == PKCEMethodPlain
}

// VerifyPKCE checks a code verifier against the stored challenge. With S256
// the verifier's SHA-256 (base64url, unpadded) must equal the challenge;
// with plain the verifier itself must.
func VerifyPKCE(challenge, method, verifier string) error {
	if challenge == "" {
		return nil // session was initialized without PKCE
	}
	if verifier == "" {
		return fmt.Errorf("code_verifier is required")
	}
	var derived string
	switch method {
	case PKCEMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		derived = base64.RawURLEncoding.EncodeToString(sum[:])
	case PKCEMethodPlain, "":
		derived = verifier
	default:
		return fmt.Errorf("unsupported code_challenge_method %q", method)
	}
	if subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) != 1 {
		return fmt.Errorf("code_verifier does not match challenge")
	}
	return nil
}
