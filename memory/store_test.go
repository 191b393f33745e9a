package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekeep-io/gatekeep/client"
	"github.com/gatekeep-io/gatekeep/domain"
	gkerrors "github.com/gatekeep-io/gatekeep/errors"
)

func newTestSession(id, userID, token string) *domain.Session {
	now := time.Now().UTC()
	return &domain.Session{
		ID:          id,
		UserID:      userID,
		AccessToken: token,
		IPAddress:   "10.0.0.5",
		IsActive:    true,
		CreatedAt:   now,
		LastUsedAt:  now,
	}
}

func TestStoreSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	sess := newTestSession("s1", "42", "tok-1")
	require.NoError(t, store.StoreSession(ctx, sess))

	got, err := store.GetSessionByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sess.AccessToken, got.AccessToken)

	// Reads are copies, not aliases into the store.
	got.AccessToken = "mutated"
	again, err := store.GetSessionByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", again.AccessToken)

	byToken, err := store.GetSessionByAccessToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "s1", byToken.ID)

	_, err = store.GetSessionByID(ctx, "missing")
	assert.ErrorIs(t, err, gkerrors.ErrNotFound)
	_, err = store.GetSessionByAccessToken(ctx, "missing")
	assert.ErrorIs(t, err, gkerrors.ErrNotFound)
}

func TestStoreSessionUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.StoreSession(ctx, newTestSession("s1", "42", "tok-1")))

	err := store.StoreSession(ctx, newTestSession("s1", "42", "tok-2"))
	assert.ErrorIs(t, err, gkerrors.ErrUniqueViolation)

	err = store.StoreSession(ctx, newTestSession("s2", "42", "tok-1"))
	assert.ErrorIs(t, err, gkerrors.ErrUniqueViolation)
}

func TestStoreRotateAccessToken(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now().UTC()

	require.NoError(t, store.StoreSession(ctx, newTestSession("s1", "42", "tok-1")))

	require.NoError(t, store.RotateAccessToken(ctx, "s1", "tok-1", "tok-2", "10.0.0.9", now))
	got, err := store.GetSessionByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.AccessToken)
	assert.Equal(t, "10.0.0.9", got.IPAddress)

	// The swap is conditional on the old token.
	err = store.RotateAccessToken(ctx, "s1", "tok-1", "tok-3", "10.0.0.9", now)
	assert.ErrorIs(t, err, domain.ErrConflict)

	// And on the session still being active.
	require.NoError(t, store.CloseSession(ctx, "s1", now))
	err = store.RotateAccessToken(ctx, "s1", "tok-2", "tok-3", "10.0.0.9", now)
	assert.ErrorIs(t, err, domain.ErrConflict)

	err = store.RotateAccessToken(ctx, "missing", "x", "y", "10.0.0.9", now)
	assert.ErrorIs(t, err, gkerrors.ErrNotFound)
}

func TestStoreCloseSessionIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.StoreSession(ctx, newTestSession("s1", "42", "tok-1")))

	first := time.Now().UTC()
	require.NoError(t, store.CloseSession(ctx, "s1", first))
	require.NoError(t, store.CloseSession(ctx, "s1", first.Add(time.Hour)))

	got, err := store.GetSessionByID(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.LoggedOutAt)
	assert.Equal(t, first, *got.LoggedOutAt)
}

func TestStoreDeleteSessionCascades(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.StoreSession(ctx, newTestSession("s1", "42", "tok-1")))
	require.NoError(t, store.StoreRefreshToken(ctx, &domain.RefreshToken{
		ID:        "r1",
		SessionID: "s1",
		TokenHash: "h1",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}))

	require.NoError(t, store.DeleteSession(ctx, "s1"))

	_, err := store.GetSessionByID(ctx, "s1")
	assert.ErrorIs(t, err, gkerrors.ErrNotFound)
	_, err = store.GetRefreshTokenByID(ctx, "r1")
	assert.ErrorIs(t, err, gkerrors.ErrNotFound)
}

func TestStoreRotateRefreshToken(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now().UTC()

	require.NoError(t, store.StoreRefreshToken(ctx, &domain.RefreshToken{
		ID:        "r1",
		SessionID: "s1",
		TokenHash: "h1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}))

	require.NoError(t, store.RotateRefreshToken(ctx, "r1", "h1", "h2", now))
	got, err := store.GetRefreshTokenByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "h2", got.TokenHash)
	require.NotNil(t, got.UsedAt)

	err = store.RotateRefreshToken(ctx, "r1", "h1", "h3", now)
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, store.RevokeRefreshToken(ctx, "r1"))
	err = store.RotateRefreshToken(ctx, "r1", "h2", "h3", now)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestStoreClientUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateClient(ctx, &client.Client{ID: "id-1", ClientID: "api", Name: "API"}))

	err := store.CreateClient(ctx, &client.Client{ID: "id-2", ClientID: "api", Name: "Other"})
	assert.ErrorIs(t, err, gkerrors.ErrUniqueViolation)

	got, err := store.GetClientByClientID(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)

	got.Name = "mutated"
	again, err := store.GetClientByID(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "API", again.Name)
}

func TestStoreUpdateClient(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	c := &client.Client{ID: "id-1", ClientID: "api", Name: "API"}
	require.NoError(t, store.CreateClient(ctx, c))

	c.Revoked = true
	require.NoError(t, store.UpdateClient(ctx, c))
	got, err := store.GetClientByID(ctx, "id-1")
	require.NoError(t, err)
	assert.True(t, got.Revoked)

	err = store.UpdateClient(ctx, &client.Client{ID: "missing"})
	assert.ErrorIs(t, err, gkerrors.ErrNotFound)
}

func TestStoreListSessionsOrder(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	older := newTestSession("s1", "42", "tok-1")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := newTestSession("s2", "42", "tok-2")

	require.NoError(t, store.StoreSession(ctx, older))
	require.NoError(t, store.StoreSession(ctx, newer))

	sessions, err := store.ListSessionsByUserID(ctx, "42")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s2", sessions[0].ID)
	assert.Equal(t, "s1", sessions[1].ID)
}
