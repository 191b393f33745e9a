package gatekeep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gatekeep-io/gatekeep/client"
	"github.com/gatekeep-io/gatekeep/domain"
	gkerrors "github.com/gatekeep-io/gatekeep/errors"
)

// SessionView is the caller-facing projection of a session after an open,
// validate or refresh operation. RefreshToken carries a plaintext secret and
// is populated only by operations that minted or rotated one.
type SessionView struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	ClientID     string    `json:"client_id,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthService is the facade over the session manager, refresh token manager
// and client registry. It answers the platform's two questions: is this
// access token valid right now under this IP and user agent, and can this
// refresh token mint a new credential pair.
//
// Unexpected failures are wrapped as ErrInternal at this boundary; taxonomy
// errors pass through unchanged.
type AuthService struct {
	sessions *SessionService
	refresh  *RefreshTokenService
	clients  *client.Registry
}

// NewAuthService creates the facade.
func NewAuthService(sessions *SessionService, refresh *RefreshTokenService, clients *client.Registry) *AuthService {
	return &AuthService{sessions: sessions, refresh: refresh, clients: clients}
}

// OpenSession opens a session for a user and returns the initial credential
// pair. clientID may be empty for first-party sessions.
func (a *AuthService) OpenSession(ctx context.Context, userID, clientID, ip, userAgent string) (*SessionView, error) {
	sess, issued, err := a.sessions.Open(ctx, userID, clientID, ip, userAgent)
	if err != nil {
		return nil, classify(err)
	}
	return &SessionView{
		SessionID:    sess.ID,
		UserID:       sess.UserID,
		ClientID:     sess.ClientID,
		AccessToken:  sess.AccessToken,
		RefreshToken: issued.Plaintext,
		ExpiresAt:    issued.Token.ExpiresAt,
	}, nil
}

// ValidateAccessToken authenticates and rotates an access token. The returned
// view carries the successor token; the presented one is spent either way.
func (a *AuthService) ValidateAccessToken(ctx context.Context, sessionID, userID, accessToken, ip, userAgent string) (*SessionView, error) {
	sess, err := a.sessions.ValidateAccessToken(ctx, sessionID, userID, accessToken, ip, userAgent)
	if err != nil {
		return nil, classify(err)
	}
	return &SessionView{
		SessionID:   sess.ID,
		UserID:      sess.UserID,
		ClientID:    sess.ClientID,
		AccessToken: sess.AccessToken,
	}, nil
}

// ValidateRefreshToken verifies a presented refresh token for a user and, on
// success, returns a fresh credential pair: the rotated refresh secret plus a
// newly rotated access token on the owning session.
//
// Every live refresh token across the user's active sessions is checked
// concurrently and the first success wins. This deliberately tolerates
// transient duplicates of live tokens left behind by racing issuance; the
// rest of the checks are cancelled once a winner is known. Afterwards the
// user, IP-subnet and user-agent bindings are re-validated exactly as in
// access-token validation (empty ip/userAgent skip their check). When
// clientCheck is non-nil the OAuth client is verified first.
func (a *AuthService) ValidateRefreshToken(ctx context.Context, userID, refreshToken, ip, userAgent string, clientCheck *client.Check) (*SessionView, error) {
	if clientCheck != nil {
		if _, err := a.clients.Check(ctx, *clientCheck); err != nil {
			return nil, classify(err)
		}
	}

	sessions, err := a.sessions.GetByUserID(ctx, userID)
	if err != nil {
		return nil, classify(err)
	}

	type candidate struct {
		sess    *domain.Session
		tokenID string
	}
	var candidates []candidate
	for _, sess := range sessions {
		if !sess.IsActive {
			continue
		}
		live, err := a.refresh.LiveTokens(ctx, sess.ID)
		if err != nil {
			return nil, classify(err)
		}
		for _, t := range live {
			candidates = append(candidates, candidate{sess: sess, tokenID: t.ID})
		}
	}
	if len(candidates) == 0 {
		return nil, gkerrors.NewNotFound("live refresh token for user")
	}

	// Fan out: one verification task per live token, first success wins and
	// cancels the rest.
	var (
		mu       sync.Mutex
		winner   *IssuedRefreshToken
		winSess  *domain.Session
		checkErr error
	)
	errMatched := errors.New("refresh token matched")
	g, fanCtx := errgroup.WithContext(ctx)
	for _, cand := range candidates {
		g.Go(func() error {
			issued, err := a.refresh.Check(fanCtx, cand.tokenID, refreshToken)
			if err != nil {
				mu.Lock()
				if checkErr == nil && !errors.Is(err, context.Canceled) {
					checkErr = err
				}
				mu.Unlock()
				// A mismatch only disqualifies this candidate.
				return nil
			}
			mu.Lock()
			if winner == nil {
				winner, winSess = issued, cand.sess
			}
			mu.Unlock()
			return errMatched
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, errMatched) {
		return nil, classify(err)
	}
	if winner == nil {
		if checkErr != nil {
			return nil, classify(checkErr)
		}
		return nil, gkerrors.NewUnauthorized("refresh token did not match any live token")
	}
	if len(candidates) > 1 {
		log.Debug().Int("candidates", len(candidates)).Str("session_id", winSess.ID).
			Msg("Multiple live refresh tokens checked concurrently")
	}

	if err := a.sessions.VerifyBinding(ctx, winSess, userID, ip, userAgent); err != nil {
		return nil, classify(err)
	}

	sess, err := a.sessions.Rotate(ctx, winSess, ip)
	if err != nil {
		return nil, classify(err)
	}
	return &SessionView{
		SessionID:    sess.ID,
		UserID:       sess.UserID,
		ClientID:     sess.ClientID,
		AccessToken:  sess.AccessToken,
		RefreshToken: winner.Plaintext,
		ExpiresAt:    winner.Token.ExpiresAt,
	}, nil
}

// CloseSession logs a session out: its refresh tokens are terminally revoked
// and the session is marked inactive. Idempotent for already-closed sessions.
func (a *AuthService) CloseSession(ctx context.Context, sessionID string) error {
	if err := a.refresh.RevokeForSession(ctx, sessionID); err != nil {
		return classify(err)
	}
	return classify(a.sessions.Close(ctx, sessionID))
}

// CheckOAuthClient verifies a registered client against the supplied
// expectations. Omitted fields are not checked.
func (a *AuthService) CheckOAuthClient(ctx context.Context, chk client.Check) (*client.Client, error) {
	c, err := a.clients.Check(ctx, chk)
	if err != nil {
		return nil, classify(err)
	}
	return c, nil
}

// classify maps anything outside the engine's failure taxonomy to ErrInternal
// at the facade boundary.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gkerrors.ErrNotFound),
		errors.Is(err, gkerrors.ErrIntegrityViolation),
		errors.Is(err, gkerrors.ErrUnauthorized),
		errors.Is(err, gkerrors.ErrUniqueViolation),
		errors.Is(err, gkerrors.ErrInternal):
		return err
	default:
		return gkerrors.NewInternal(err)
	}
}
