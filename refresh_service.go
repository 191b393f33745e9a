package gatekeep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gatekeep-io/gatekeep/domain"
	gkerrors "github.com/gatekeep-io/gatekeep/errors"
)

// DefaultRefreshTokenTTL is the lifetime of a refresh token when the caller
// does not specify one.
const DefaultRefreshTokenTTL = 24 * time.Hour

// IssuedRefreshToken pairs a stored token row with the plaintext secret
// handed to the client. The plaintext exists only in this value; it is never
// persisted.
type IssuedRefreshToken struct {
	Token     *domain.RefreshToken
	Plaintext string
}

// RefreshTokenService owns the RefreshToken lifecycle: issue, single-use
// rotation, expiry and revocation.
type RefreshTokenService struct {
	repo        domain.RefreshTokenRepository
	ttl         time.Duration
	tokenLength int
}

// NewRefreshTokenService creates a refresh token manager. Zero values select
// DefaultRefreshTokenTTL and DefaultTokenLength.
func NewRefreshTokenService(repo domain.RefreshTokenRepository, ttl time.Duration, tokenLength int) *RefreshTokenService {
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}
	if tokenLength <= 0 {
		tokenLength = DefaultTokenLength
	}
	return &RefreshTokenService{repo: repo, ttl: ttl, tokenLength: tokenLength}
}

// Create issues a fresh refresh token for a session. A zero expiresAt selects
// the default TTL. Only the hash is stored; the plaintext is returned once.
func (s *RefreshTokenService) Create(ctx context.Context, sessionID string, expiresAt time.Time) (*IssuedRefreshToken, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	plaintext, hash, err := NewToken(s.tokenLength)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.ttl)
	}
	token := &domain.RefreshToken{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := s.repo.StoreRefreshToken(ctx, token); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}
	return &IssuedRefreshToken{Token: token, Plaintext: plaintext}, nil
}

// Check verifies a presented refresh token secret. On success it rotates the
// secret in place: the row keeps its identity, used_at is recorded and the
// returned plaintext is the successor the client must hold from now on, which
// makes every secret single-use.
//
// An expired token is burned on its first rejected use: expiry is derived
// from the row itself and the revoked flag is flipped persistently so later
// checks fail terminally even without re-deriving the expiry.
func (s *RefreshTokenService) Check(ctx context.Context, tokenID, presented string) (*IssuedRefreshToken, error) {
	token, err := s.repo.GetRefreshTokenByID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if HashToken(presented) != token.TokenHash {
		return nil, gkerrors.NewIntegrityViolation("refresh token mismatch")
	}
	if token.Revoked {
		return nil, gkerrors.NewUnauthorized("refresh token revoked")
	}
	now := time.Now().UTC()
	if token.Expired(now) {
		if err := s.repo.RevokeRefreshToken(ctx, token.ID); err != nil {
			log.Error().Err(err).Str("token_id", token.ID).Msg("Failed to burn expired refresh token")
			return nil, gkerrors.NewInternal(err)
		}
		return nil, gkerrors.NewUnauthorized("refresh token expired")
	}

	plaintext, hash, err := NewToken(s.tokenLength)
	if err != nil {
		return nil, err
	}
	if err := s.repo.RotateRefreshToken(ctx, token.ID, token.TokenHash, hash, now); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Someone rotated the secret between our read and write; the
			// presented plaintext is already spent.
			return nil, gkerrors.NewIntegrityViolation("refresh token already used")
		}
		return nil, err
	}

	out := token.Clone()
	out.TokenHash = hash
	out.UsedAt = &now
	return &IssuedRefreshToken{Token: out, Plaintext: plaintext}, nil
}

// LiveTokens returns the non-revoked, unexpired tokens of a session. The
// steady state is zero or one, but transient duplicates from racing issuance
// are returned rather than hidden so callers can try them all.
func (s *RefreshTokenService) LiveTokens(ctx context.Context, sessionID string) ([]*domain.RefreshToken, error) {
	all, err := s.repo.ListRefreshTokensBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var live []*domain.RefreshToken
	for _, t := range all {
		if t.Live(now) {
			live = append(live, t)
		}
	}
	return live, nil
}

// RevokeForSession terminally revokes every token of a session, e.g. on
// owner logout.
func (s *RefreshTokenService) RevokeForSession(ctx context.Context, sessionID string) error {
	return s.repo.RevokeSessionTokens(ctx, sessionID)
}
