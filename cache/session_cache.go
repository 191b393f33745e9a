// Package cache provides a read-side cache of sessions keyed by hashed
// access token, fronting the durable session store for lookup-heavy callers.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/gatekeep-io/gatekeep/domain"
)

// SessionCache caches sessions by access token. Entries must be evicted on
// rotation and close; the engine treats the cache as advisory and always
// falls back to the repository.
type SessionCache interface {
	io.Closer

	// Set stores a session under its current access token.
	Set(ctx context.Context, session *domain.Session) error

	// Get retrieves the session for an access token, or false if absent.
	Get(ctx context.Context, accessToken string) (*domain.Session, bool)

	// Delete evicts the entry for an access token.
	Delete(ctx context.Context, accessToken string) error

	// Clear evicts every entry.
	Clear(ctx context.Context) error
}

// HashToken derives the cache key for an access token. Keys are hashed so a
// cache dump never exposes live credentials.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
