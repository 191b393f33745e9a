package domain

import (
	"context"
	"errors"
	"time"
)

// ErrConflict reports a lost compare-and-swap race on a conditional update:
// the row exists but its guarded column no longer holds the expected value.
var ErrConflict = errors.New("conditional update conflict")

// SessionRepository is the durable store for Session rows.
//
// Implementations map missing rows to errors.ErrNotFound from the engine's
// errors package and duplicate identifiers to ErrUniqueViolation.
type SessionRepository interface {
	// StoreSession inserts a new session row.
	StoreSession(ctx context.Context, session *Session) error

	// GetSessionByID retrieves a session by its primary identifier.
	GetSessionByID(ctx context.Context, id string) (*Session, error)

	// GetSessionByAccessToken retrieves the session currently holding the
	// given access token value.
	GetSessionByAccessToken(ctx context.Context, accessToken string) (*Session, error)

	// ListSessionsByUserID returns all sessions for a user, newest first.
	ListSessionsByUserID(ctx context.Context, userID string) ([]*Session, error)

	// ListSessionsByClientID returns all sessions opened under a client.
	ListSessionsByClientID(ctx context.Context, clientID string) ([]*Session, error)

	// RotateAccessToken swaps the stored access token, updates the bound IP
	// and last_used_at, conditional on the pre-rotation token value still
	// being current. Returns ErrConflict when another rotation won the race,
	// so no two concurrent validations can both succeed against the same
	// pre-rotation value.
	RotateAccessToken(ctx context.Context, sessionID, oldToken, newToken, ip string, usedAt time.Time) error

	// CloseSession marks the session inactive and records logout time.
	// Closing an already-closed session is a no-op, not an error.
	CloseSession(ctx context.Context, sessionID string, at time.Time) error

	// DeleteSession removes a session row and, by ownership, its refresh
	// token chain. Used to compensate a failed open.
	DeleteSession(ctx context.Context, sessionID string) error
}

// RefreshTokenRepository is the durable store for RefreshToken rows.
type RefreshTokenRepository interface {
	// StoreRefreshToken inserts a new token row.
	StoreRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshTokenByID retrieves a token by its identifier.
	GetRefreshTokenByID(ctx context.Context, id string) (*RefreshToken, error)

	// ListRefreshTokensBySessionID returns every token row in a session's
	// chain, including revoked and expired ones.
	ListRefreshTokensBySessionID(ctx context.Context, sessionID string) ([]*RefreshToken, error)

	// RotateRefreshToken replaces token_hash on the same row and records
	// used_at, conditional on the previous hash still being current.
	// Returns ErrConflict when the secret was already rotated.
	RotateRefreshToken(ctx context.Context, id, oldHash, newHash string, usedAt time.Time) error

	// RevokeRefreshToken marks a single token revoked. Idempotent.
	RevokeRefreshToken(ctx context.Context, id string) error

	// RevokeSessionTokens marks every token of a session revoked, e.g. on
	// owner logout.
	RevokeSessionTokens(ctx context.Context, sessionID string) error
}
