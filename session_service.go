package gatekeep

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gatekeep-io/gatekeep/cache"
	"github.com/gatekeep-io/gatekeep/domain"
	gkerrors "github.com/gatekeep-io/gatekeep/errors"
)

// DefaultSubnetPrefixBits is the IPv4 prefix width of the session IP binding.
// A /24 deliberately tolerates carrier NAT and IP churn while still catching
// gross relocation.
const DefaultSubnetPrefixBits = 24

// rotation retries after a lost compare-and-swap; one refetch normally
// settles the race through the token equality check.
const maxRotateAttempts = 3

// SessionOptions configures the session manager.
type SessionOptions struct {
	// TokenLength is the entropy in bytes of minted access tokens.
	TokenLength int
	// SubnetPrefixBits is the IPv4 prefix width for the IP binding check.
	SubnetPrefixBits int
	// UAMismatchRevokes controls whether a user-agent mismatch revokes the
	// session like an IP or identity mismatch does, or only rejects the
	// request. The historical behavior is reject-only.
	UAMismatchRevokes bool
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.TokenLength <= 0 {
		o.TokenLength = DefaultTokenLength
	}
	if o.SubnetPrefixBits <= 0 || o.SubnetPrefixBits > 32 {
		o.SubnetPrefixBits = DefaultSubnetPrefixBits
	}
	return o
}

// SessionService owns the Session lifecycle: open, close and the
// validate-and-rotate state transition at the heart of the engine.
type SessionService struct {
	repo    domain.SessionRepository
	refresh *RefreshTokenService
	cache   cache.SessionCache // optional read-side cache, may be nil
	opts    SessionOptions
}

// NewSessionService creates a session manager. sessionCache may be nil.
func NewSessionService(repo domain.SessionRepository, refresh *RefreshTokenService, sessionCache cache.SessionCache, opts SessionOptions) *SessionService {
	return &SessionService{
		repo:    repo,
		refresh: refresh,
		cache:   sessionCache,
		opts:    opts.withDefaults(),
	}
}

// Open creates an active session bound to the caller's IP and user agent,
// with a freshly minted access token, and pairs it with an initial refresh
// token. If the refresh token cannot be stored the session row is deleted
// again so no half-open session survives.
func (s *SessionService) Open(ctx context.Context, userID, clientID, ip, userAgent string) (*domain.Session, *IssuedRefreshToken, error) {
	if userID == "" {
		return nil, nil, errors.New("user id is required")
	}

	accessToken, _, err := NewToken(s.opts.TokenLength)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	sess := &domain.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		ClientID:    clientID,
		AccessToken: accessToken,
		IPAddress:   ip,
		UserAgent:   userAgent,
		IsActive:    true,
		CreatedAt:   now,
		LastUsedAt:  now,
	}
	if err := s.repo.StoreSession(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("storing session: %w", err)
	}

	issued, err := s.refresh.Create(ctx, sess.ID, time.Time{})
	if err != nil {
		if delErr := s.repo.DeleteSession(ctx, sess.ID); delErr != nil {
			log.Error().Err(delErr).Str("session_id", sess.ID).Msg("Failed to delete session after refresh token creation failed")
		}
		return nil, nil, fmt.Errorf("creating initial refresh token: %w", err)
	}

	log.Debug().Str("session_id", sess.ID).Str("user_id", userID).Msg("Session opened")
	return sess, issued, nil
}

// Close marks the session inactive and records the logout time. Closing a
// session twice is not an error.
func (s *SessionService) Close(ctx context.Context, sessionID string) error {
	sess, err := s.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.repo.CloseSession(ctx, sessionID, time.Now().UTC()); err != nil {
		return err
	}
	s.dropCached(ctx, sess.AccessToken)
	return nil
}

// GetByID returns the session with the given identifier.
func (s *SessionService) GetByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.repo.GetSessionByID(ctx, sessionID)
}

// GetByAccessToken returns the session currently holding the given access
// token, consulting the read-side cache first.
func (s *SessionService) GetByAccessToken(ctx context.Context, accessToken string) (*domain.Session, error) {
	if s.cache != nil {
		if sess, ok := s.cache.Get(ctx, accessToken); ok {
			return sess, nil
		}
	}
	sess, err := s.repo.GetSessionByAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, sess); err != nil {
			log.Warn().Err(err).Msg("Failed to cache session")
		}
	}
	return sess, nil
}

// GetByUserID returns all sessions of a user, newest first.
func (s *SessionService) GetByUserID(ctx context.Context, userID string) ([]*domain.Session, error) {
	return s.repo.ListSessionsByUserID(ctx, userID)
}

// GetByClientID returns all sessions opened under an OAuth client.
func (s *SessionService) GetByClientID(ctx context.Context, clientID string) ([]*domain.Session, error) {
	return s.repo.ListSessionsByClientID(ctx, clientID)
}

// ValidateAccessToken is the core state transition: it authenticates the
// presented access token against the session's bindings and, on success,
// rotates the token so each value is usable exactly once.
//
// Identity, token and IP mismatches are treated as hijack signals: the
// session is closed before the failure surfaces, so a retry immediately sees
// it inactive. A user-agent mismatch only rejects the request unless
// UAMismatchRevokes is set.
//
// Rotation is an optimistic compare-and-swap on the stored access token.
// When two validations race, exactly one write commits; the loser refetches
// and fails the token equality check like any replay would.
func (s *SessionService) ValidateAccessToken(ctx context.Context, sessionID, userID, accessToken, ip, userAgent string) (*domain.Session, error) {
	for attempt := 0; ; attempt++ {
		sess, err := s.repo.GetSessionByID(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if !sess.IsActive {
			return nil, gkerrors.NewIntegrityViolation("session is not active")
		}
		if sess.UserID != userID {
			return nil, s.revoke(ctx, sess, "user id mismatch")
		}
		if sess.AccessToken != accessToken {
			return nil, s.revoke(ctx, sess, "access token mismatch")
		}
		if !sameSubnet(sess.IPAddress, ip, s.opts.SubnetPrefixBits) {
			return nil, s.revoke(ctx, sess, "ip outside bound subnet")
		}
		if sess.UserAgent != userAgent {
			if s.opts.UAMismatchRevokes {
				return nil, s.revoke(ctx, sess, "user agent mismatch")
			}
			return nil, gkerrors.NewIntegrityViolation("user agent mismatch")
		}

		newToken, _, err := NewToken(s.opts.TokenLength)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		err = s.repo.RotateAccessToken(ctx, sess.ID, accessToken, newToken, ip, now)
		switch {
		case err == nil:
			s.dropCached(ctx, accessToken)
			sess.AccessToken = newToken
			sess.IPAddress = ip
			sess.LastUsedAt = now
			return sess, nil
		case errors.Is(err, domain.ErrConflict) && attempt < maxRotateAttempts:
			// Lost the race; the refetched snapshot decides the outcome.
			continue
		default:
			return nil, err
		}
	}
}

// Rotate mints and persists a replacement access token for sess, used by the
// refresh flow after a refresh token has been verified. The swap is
// conditional on sess's current access token; a concurrent rotation fails
// the caller with an integrity violation.
func (s *SessionService) Rotate(ctx context.Context, sess *domain.Session, ip string) (*domain.Session, error) {
	newToken, _, err := NewToken(s.opts.TokenLength)
	if err != nil {
		return nil, err
	}
	if ip == "" {
		ip = sess.IPAddress
	}
	now := time.Now().UTC()
	if err := s.repo.RotateAccessToken(ctx, sess.ID, sess.AccessToken, newToken, ip, now); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, gkerrors.NewIntegrityViolation("access token rotated concurrently")
		}
		return nil, err
	}
	s.dropCached(ctx, sess.AccessToken)

	out := sess.Clone()
	out.AccessToken = newToken
	out.IPAddress = ip
	out.LastUsedAt = now
	return out, nil
}

// VerifyBinding applies the user, IP-subnet and user-agent checks of
// ValidateAccessToken to an already-loaded session, with the same revocation
// side effects, but without touching the access token. Empty ip or userAgent
// skip the respective check, matching the optional bindings of the refresh
// flow.
func (s *SessionService) VerifyBinding(ctx context.Context, sess *domain.Session, userID, ip, userAgent string) error {
	if !sess.IsActive {
		return gkerrors.NewIntegrityViolation("session is not active")
	}
	if sess.UserID != userID {
		return s.revoke(ctx, sess, "user id mismatch")
	}
	if ip != "" && !sameSubnet(sess.IPAddress, ip, s.opts.SubnetPrefixBits) {
		return s.revoke(ctx, sess, "ip outside bound subnet")
	}
	if userAgent != "" && sess.UserAgent != userAgent {
		if s.opts.UAMismatchRevokes {
			return s.revoke(ctx, sess, "user agent mismatch")
		}
		return gkerrors.NewIntegrityViolation("user agent mismatch")
	}
	return nil
}

// revoke closes the session and only then surfaces the integrity violation,
// so a retried request can never reuse the compromised credential.
func (s *SessionService) revoke(ctx context.Context, sess *domain.Session, reason string) error {
	if err := s.repo.CloseSession(ctx, sess.ID, time.Now().UTC()); err != nil && !errors.Is(err, gkerrors.ErrNotFound) {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to close session after integrity violation")
		return gkerrors.NewInternal(err)
	}
	s.dropCached(ctx, sess.AccessToken)
	log.Warn().Str("session_id", sess.ID).Str("reason", reason).Msg("Session revoked on binding mismatch")
	return gkerrors.NewIntegrityViolation(reason)
}

func (s *SessionService) dropCached(ctx context.Context, accessToken string) {
	if s.cache == nil || accessToken == "" {
		return
	}
	if err := s.cache.Delete(ctx, accessToken); err != nil {
		log.Warn().Err(err).Msg("Failed to evict session from cache")
	}
}

// sameSubnet reports whether two IPv4 addresses share the same prefix of the
// given width. The comparison is against whichever IP was last stored on the
// session, so the bound subnet drifts with use. Non-IPv4 addresses fall back
// to exact equality; unparsable input never matches.
func sameSubnet(stored, presented string, bits int) bool {
	a, errA := netip.ParseAddr(stored)
	b, errB := netip.ParseAddr(presented)
	if errA != nil || errB != nil {
		return false
	}
	a, b = a.Unmap(), b.Unmap()
	if !a.Is4() || !b.Is4() {
		return a == b
	}
	prefix, err := a.Prefix(bits)
	if err != nil {
		return false
	}
	return prefix.Contains(b)
}
