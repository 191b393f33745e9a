package gatekeep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekeep-io/gatekeep/client"
	gkerrors "github.com/gatekeep-io/gatekeep/errors"
	"github.com/gatekeep-io/gatekeep/memory"
)

func newAuthService(t *testing.T) (*AuthService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	refresh := NewRefreshTokenService(store, 0, 0)
	sessions := NewSessionService(store, refresh, nil, SessionOptions{})
	return NewAuthService(sessions, refresh, client.NewRegistry(store)), store
}

func TestAuthOpenSession(t *testing.T) {
	ctx := context.Background()
	auth, _ := newAuthService(t)

	view, err := auth.OpenSession(ctx, "42", "web", "10.0.0.5", "Mozilla/5.0")
	require.NoError(t, err)

	assert.NotEmpty(t, view.SessionID)
	assert.Equal(t, "42", view.UserID)
	assert.Equal(t, "web", view.ClientID)
	assert.NotEmpty(t, view.AccessToken)
	assert.NotEmpty(t, view.RefreshToken)
	assert.WithinDuration(t, time.Now().UTC().Add(DefaultRefreshTokenTTL), view.ExpiresAt, 2*time.Second)
}

func TestAuthValidateAccessToken(t *testing.T) {
	ctx := context.Background()
	auth, _ := newAuthService(t)

	opened, err := auth.OpenSession(ctx, "42", "", "10.0.0.5", "ua")
	require.NoError(t, err)

	view, err := auth.ValidateAccessToken(ctx, opened.SessionID, "42", opened.AccessToken, "10.0.0.9", "ua")
	require.NoError(t, err)
	assert.NotEqual(t, opened.AccessToken, view.AccessToken)
	assert.Empty(t, view.RefreshToken, "validation never mints a refresh token")

	_, err = auth.ValidateAccessToken(ctx, opened.SessionID, "42", opened.AccessToken, "10.0.0.9", "ua")
	assert.ErrorIs(t, err, gkerrors.ErrIntegrityViolation)
}

func TestAuthValidateRefreshToken(t *testing.T) {
	ctx := context.Background()
	auth, store := newAuthService(t)

	opened, err := auth.OpenSession(ctx, "42", "", "10.0.0.5", "Mozilla/5.0")
	require.NoError(t, err)

	view, err := auth.ValidateRefreshToken(ctx, "42", opened.RefreshToken, "10.0.0.9", "Mozilla/5.0", nil)
	require.NoError(t, err)

	// A full credential pair comes back: rotated refresh secret and a freshly
	// rotated access token on the same session.
	assert.Equal(t, opened.SessionID, view.SessionID)
	assert.NotEqual(t, opened.RefreshToken, view.RefreshToken)
	assert.NotEqual(t, opened.AccessToken, view.AccessToken)

	stored, err := store.GetSessionByID(ctx, opened.SessionID)
	require.NoError(t, err)
	assert.Equal(t, view.AccessToken, stored.AccessToken)
	assert.True(t, stored.IsActive)

	// The spent refresh secret no longer matches anything.
	_, err = auth.ValidateRefreshToken(ctx, "42", opened.RefreshToken, "10.0.0.9", "Mozilla/5.0", nil)
	assert.ErrorIs(t, err, gkerrors.ErrIntegrityViolation)

	// The successor works.
	_, err = auth.ValidateRefreshToken(ctx, "42", view.RefreshToken, "10.0.0.9", "Mozilla/5.0", nil)
	require.NoError(t, err)
}

func TestAuthValidateRefreshTokenNoLiveTokens(t *testing.T) {
	ctx := context.Background()
	auth, _ := newAuthService(t)

	_, err := auth.ValidateRefreshToken(ctx, "42", "whatever", "", "", nil)
	assert.ErrorIs(t, err, gkerrors.ErrNotFound)
}

func TestAuthValidateRefreshTokenDuplicateLiveTokens(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	refresh := NewRefreshTokenService(store, 0, 0)
	sessions := NewSessionService(store, refresh, nil, SessionOptions{})
	auth := NewAuthService(sessions, refresh, client.NewRegistry(store))

	opened, err := auth.OpenSession(ctx, "42", "", "10.0.0.5", "ua")
	require.NoError(t, err)

	// Racing issuance can leave a second live token on the session. The
	// fan-out must still find the one that matches.
	_, err = refresh.Create(ctx, opened.SessionID, time.Time{})
	require.NoError(t, err)
	extra, err := refresh.Create(ctx, opened.SessionID, time.Time{})
	require.NoError(t, err)

	view, err := auth.ValidateRefreshToken(ctx, "42", opened.RefreshToken, "10.0.0.5", "ua", nil)
	require.NoError(t, err)
	assert.Equal(t, opened.SessionID, view.SessionID)

	view2, err := auth.ValidateRefreshToken(ctx, "42", extra.Plaintext, "10.0.0.5", "ua", nil)
	require.NoError(t, err)
	assert.Equal(t, opened.SessionID, view2.SessionID)
}

func TestAuthValidateRefreshTokenAcrossSessions(t *testing.T) {
	ctx := context.Background()
	auth, _ := newAuthService(t)

	first, err := auth.OpenSession(ctx, "42", "", "10.0.0.5", "ua")
	require.NoError(t, err)
	second, err := auth.OpenSession(ctx, "42", "", "192.168.1.10", "ua")
	require.NoError(t, err)

	// The token selects its owning session even when the user has several.
	view, err := auth.ValidateRefreshToken(ctx, "42", second.RefreshToken, "192.168.1.20", "ua", nil)
	require.NoError(t, err)
	assert.Equal(t, second.SessionID, view.SessionID)

	view, err = auth.ValidateRefreshToken(ctx, "42", first.RefreshToken, "10.0.0.9", "ua", nil)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, view.SessionID)
}

func TestAuthValidateRefreshTokenBindingMismatch(t *testing.T) {
	ctx := context.Background()
	auth, store := newAuthService(t)

	opened, err := auth.OpenSession(ctx, "42", "", "10.0.0.5", "ua")
	require.NoError(t, err)

	// The refresh secret itself is valid, but the caller comes from a foreign
	// subnet. The session is revoked before the failure surfaces.
	_, err = auth.ValidateRefreshToken(ctx, "42", opened.RefreshToken, "192.168.1.1", "ua", nil)
	assert.ErrorIs(t, err, gkerrors.ErrIntegrityViolation)

	stored, err := store.GetSessionByID(ctx, opened.SessionID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestAuthValidateRefreshTokenWrongUser(t *testing.T) {
	ctx := context.Background()
	auth, _ := newAuthService(t)

	opened, err := auth.OpenSession(ctx, "42", "", "10.0.0.5", "ua")
	require.NoError(t, err)

	// The candidate set is scoped to the presented user, so another user's
	// token is simply not found.
	_, err = auth.ValidateRefreshToken(ctx, "43", opened.RefreshToken, "10.0.0.5", "ua", nil)
	assert.ErrorIs(t, err, gkerrors.ErrNotFound)
}

func TestAuthValidateRefreshTokenClientCheck(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	refresh := NewRefreshTokenService(store, 0, 0)
	sessions := NewSessionService(store, refresh, nil, SessionOptions{})
	registry := client.NewRegistry(store)
	auth := NewAuthService(sessions, refresh, registry)

	_, secret, err := registry.Create(ctx, client.CreateInput{
		Name:           "API",
		ClientID:       "api",
		IsConfidential: true,
	})
	require.NoError(t, err)

	opened, err := auth.OpenSession(ctx, "42", "api", "10.0.0.5", "ua")
	require.NoError(t, err)

	bad := "wrong"
	_, err = auth.ValidateRefreshToken(ctx, "42", opened.RefreshToken, "10.0.0.5", "ua",
		&client.Check{ClientID: "api", Secret: &bad})
	assert.ErrorIs(t, err, gkerrors.ErrUnauthorized)

	view, err := auth.ValidateRefreshToken(ctx, "42", opened.RefreshToken, "10.0.0.5", "ua",
		&client.Check{ClientID: "api", Secret: &secret})
	require.NoError(t, err)
	assert.Equal(t, opened.SessionID, view.SessionID)
}

func TestAuthCloseSession(t *testing.T) {
	ctx := context.Background()
	auth, store := newAuthService(t)

	opened, err := auth.OpenSession(ctx, "42", "", "10.0.0.5", "ua")
	require.NoError(t, err)

	require.NoError(t, auth.CloseSession(ctx, opened.SessionID))

	stored, err := store.GetSessionByID(ctx, opened.SessionID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	_, err = auth.ValidateRefreshToken(ctx, "42", opened.RefreshToken, "10.0.0.5", "ua", nil)
	assert.ErrorIs(t, err, gkerrors.ErrNotFound)

	require.NoError(t, auth.CloseSession(ctx, opened.SessionID))
}

func TestAuthCheckOAuthClient(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	refresh := NewRefreshTokenService(store, 0, 0)
	sessions := NewSessionService(store, refresh, nil, SessionOptions{})
	registry := client.NewRegistry(store)
	auth := NewAuthService(sessions, refresh, registry)

	_, _, err := registry.Create(ctx, client.CreateInput{Name: "SPA", ClientID: "spa", Scopes: []string{"read"}})
	require.NoError(t, err)

	c, err := auth.CheckOAuthClient(ctx, client.Check{ClientID: "spa", Scopes: []string{"read"}})
	require.NoError(t, err)
	assert.Equal(t, "spa", c.ClientID)

	_, err = auth.CheckOAuthClient(ctx, client.Check{ClientID: "spa", Scopes: []string{"read", "write"}})
	assert.ErrorIs(t, err, gkerrors.ErrUnauthorized)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(gkerrors.NewNotFound("x")), gkerrors.ErrNotFound)
	assert.ErrorIs(t, classify(gkerrors.NewUnauthorized("x")), gkerrors.ErrUnauthorized)

	wrapped := classify(assert.AnError)
	assert.ErrorIs(t, wrapped, gkerrors.ErrInternal)
	assert.ErrorIs(t, wrapped, assert.AnError)
}
