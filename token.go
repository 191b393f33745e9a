// Package gatekeep implements the session and token lifecycle engine: it
// issues, validates, rotates and revokes the credentials (sessions, access
// tokens, refresh tokens) of a multi-client API platform.
package gatekeep

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// DefaultTokenLength is the number of random bytes behind each minted token,
// 256 bits of entropy.
const DefaultTokenLength = 32

// NewToken mints an opaque credential from the crypto/rand source and returns
// the plaintext together with its comparison hash. length is the entropy in
// bytes; zero or negative selects DefaultTokenLength.
func NewToken(length int) (plaintext, hash string, err error) {
	if length <= 0 {
		length = DefaultTokenLength
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("reading random source: %w", err)
	}
	plaintext = base64.RawURLEncoding.EncodeToString(buf)
	return plaintext, HashToken(plaintext), nil
}

// HashToken computes the stored comparison digest for a token plaintext.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
