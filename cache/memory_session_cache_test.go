package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekeep-io/gatekeep/domain"
)

func testSession(token string) *domain.Session {
	now := time.Now().UTC()
	return &domain.Session{
		ID:          "sess-1",
		UserID:      "42",
		AccessToken: token,
		IPAddress:   "10.0.0.5",
		IsActive:    true,
		CreatedAt:   now,
		LastUsedAt:  now,
	}
}

func TestMemorySessionCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySessionCache(time.Minute)
	defer c.Close()

	_, ok := c.Get(ctx, "token-a")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, testSession("token-a")))

	got, ok := c.Get(ctx, "token-a")
	require.True(t, ok)
	assert.Equal(t, "sess-1", got.ID)

	// The cache hands out copies; mutating one must not leak back.
	got.IsActive = false
	again, ok := c.Get(ctx, "token-a")
	require.True(t, ok)
	assert.True(t, again.IsActive)

	require.NoError(t, c.Delete(ctx, "token-a"))
	_, ok = c.Get(ctx, "token-a")
	assert.False(t, ok)
}

func TestMemorySessionCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySessionCache(20 * time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Set(ctx, testSession("token-a")))
	time.Sleep(60 * time.Millisecond)

	_, ok := c.Get(ctx, "token-a")
	assert.False(t, ok)
}

func TestMemorySessionCacheClear(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySessionCache(time.Minute)
	defer c.Close()

	require.NoError(t, c.Set(ctx, testSession("token-a")))
	require.NoError(t, c.Set(ctx, testSession("token-b")))
	require.NoError(t, c.Clear(ctx))

	_, ok := c.Get(ctx, "token-a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "token-b")
	assert.False(t, ok)
}

func TestHashTokenStableKey(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.Len(t, HashToken("abc"), 64)
}
