package skills

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashPrefix precedes every content hash the registry emits.
const HashPrefix = "sha256:"

// ContentHash returns "sha256:" + lowercase hex of the SHA-256 digest over
// the UTF-8 bytes of the document. Stable across encoders.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return HashPrefix + hex.EncodeToString(sum[:])
}
