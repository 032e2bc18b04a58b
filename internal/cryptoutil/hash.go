package cryptoutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashEqual compares two hex digests in constant time.
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SHA256Hex returns the lowercase hex SHA-256 of data.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Secret is a configured shared secret kept only as its digest. Candidates
// are hashed before comparison so every check costs the same regardless of
// length or common prefix.
type Secret struct {
	digest string
}

// NewSecret digests s. An empty s yields a Secret that matches nothing.
func NewSecret(s string) Secret {
	if s == "" {
		return Secret{}
	}
	return Secret{digest: SHA256Hex([]byte(s))}
}

// Set reports whether a non-empty secret was configured.
func (s Secret) Set() bool { return s.digest != "" }

// Matches reports whether candidate equals the configured secret.
func (s Secret) Matches(candidate string) bool {
	if !s.Set() || candidate == "" {
		return false
	}
	return HashEqual(SHA256Hex([]byte(candidate)), s.digest)
}
