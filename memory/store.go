// Package memory provides an in-process implementation of the engine's
// repositories, used by the test suite and for embedded setups that do not
// want a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatekeep-io/gatekeep/client"
	"github.com/gatekeep-io/gatekeep/domain"
	gkerrors "github.com/gatekeep-io/gatekeep/errors"
)

// Store implements domain.SessionRepository, domain.RefreshTokenRepository
// and client.Store over mutex-guarded maps. All reads and writes copy
// entities, so callers never observe concurrent mutation, and conditional
// updates are atomic under the store mutex.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	tokens   map[string]*domain.RefreshToken
	clients  map[string]*client.Client // keyed by primary id
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*domain.Session),
		tokens:   make(map[string]*domain.RefreshToken),
		clients:  make(map[string]*client.Client),
	}
}

// --- domain.SessionRepository ---

func (s *Store) StoreSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if _, exists := s.sessions[session.ID]; exists {
		return gkerrors.NewUniqueViolation("session")
	}
	for _, other := range s.sessions {
		if other.AccessToken == session.AccessToken {
			return gkerrors.NewUniqueViolation("access token")
		}
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *Store) GetSessionByID(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, gkerrors.NewNotFound("session")
	}
	return sess.Clone(), nil
}

func (s *Store) GetSessionByAccessToken(_ context.Context, accessToken string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.AccessToken == accessToken {
			return sess.Clone(), nil
		}
	}
	return nil, gkerrors.NewNotFound("session")
}

func (s *Store) ListSessionsByUserID(_ context.Context, userID string) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess.Clone())
		}
	}
	sortSessions(out)
	return out, nil
}

func (s *Store) ListSessionsByClientID(_ context.Context, clientID string) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Session
	for _, sess := range s.sessions {
		if sess.ClientID == clientID {
			out = append(out, sess.Clone())
		}
	}
	sortSessions(out)
	return out, nil
}

func (s *Store) RotateAccessToken(_ context.Context, sessionID, oldToken, newToken, ip string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return gkerrors.NewNotFound("session")
	}
	if sess.AccessToken != oldToken || !sess.IsActive {
		return domain.ErrConflict
	}
	sess.AccessToken = newToken
	sess.IPAddress = ip
	sess.LastUsedAt = usedAt
	return nil
}

func (s *Store) CloseSession(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return gkerrors.NewNotFound("session")
	}
	if sess.IsActive {
		sess.IsActive = false
		sess.LoggedOutAt = &at
	}
	return nil
}

func (s *Store) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return gkerrors.NewNotFound("session")
	}
	delete(s.sessions, sessionID)
	for id, token := range s.tokens {
		if token.SessionID == sessionID {
			delete(s.tokens, id)
		}
	}
	return nil
}

// --- domain.RefreshTokenRepository ---

func (s *Store) StoreRefreshToken(_ context.Context, token *domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if _, exists := s.tokens[token.ID]; exists {
		return gkerrors.NewUniqueViolation("refresh token")
	}
	s.tokens[token.ID] = token.Clone()
	return nil
}

func (s *Store) GetRefreshTokenByID(_ context.Context, id string) (*domain.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[id]
	if !ok {
		return nil, gkerrors.NewNotFound("refresh token")
	}
	return token.Clone(), nil
}

func (s *Store) ListRefreshTokensBySessionID(_ context.Context, sessionID string) ([]*domain.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.RefreshToken
	for _, token := range s.tokens {
		if token.SessionID == sessionID {
			out = append(out, token.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RotateRefreshToken(_ context.Context, id, oldHash, newHash string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[id]
	if !ok {
		return gkerrors.NewNotFound("refresh token")
	}
	if token.TokenHash != oldHash || token.Revoked {
		return domain.ErrConflict
	}
	token.TokenHash = newHash
	token.UsedAt = &usedAt
	return nil
}

func (s *Store) RevokeRefreshToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[id]
	if !ok {
		return gkerrors.NewNotFound("refresh token")
	}
	token.Revoked = true
	return nil
}

func (s *Store) RevokeSessionTokens(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.tokens {
		if token.SessionID == sessionID {
			token.Revoked = true
		}
	}
	return nil
}

// --- client.Store ---

func (s *Store) CreateClient(_ context.Context, c *client.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, exists := s.clients[c.ID]; exists {
		return gkerrors.NewUniqueViolation("client")
	}
	for _, other := range s.clients {
		if other.ClientID == c.ClientID {
			return gkerrors.NewUniqueViolation("client_id " + c.ClientID)
		}
	}
	s.clients[c.ID] = c.Clone()
	return nil
}

func (s *Store) GetClientByID(_ context.Context, id string) (*client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, gkerrors.NewNotFound("client")
	}
	return c.Clone(), nil
}

func (s *Store) GetClientByClientID(_ context.Context, clientID string) (*client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.ClientID == clientID {
			return c.Clone(), nil
		}
	}
	return nil, gkerrors.NewNotFound("client")
}

func (s *Store) UpdateClient(_ context.Context, c *client.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ID]; !ok {
		return gkerrors.NewNotFound("client")
	}
	s.clients[c.ID] = c.Clone()
	return nil
}

func sortSessions(sessions []*domain.Session) {
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.After(sessions[j].CreatedAt) })
}

var (
	_ domain.SessionRepository      = (*Store)(nil)
	_ domain.RefreshTokenRepository = (*Store)(nil)
	_ client.Store                  = (*Store)(nil)
)
