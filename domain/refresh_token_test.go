package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefreshTokenLiveness(t *testing.T) {
	now := time.Now().UTC()
	token := RefreshToken{ExpiresAt: now.Add(time.Hour)}

	assert.False(t, token.Expired(now))
	assert.True(t, token.Live(now))

	assert.True(t, token.Expired(now.Add(2*time.Hour)))
	assert.False(t, token.Live(now.Add(2*time.Hour)))

	token.Revoked = true
	assert.False(t, token.Live(now))
	assert.False(t, token.Expired(now))
}

func TestSessionClone(t *testing.T) {
	at := time.Now().UTC()
	sess := &Session{ID: "s1", IsActive: false, LoggedOutAt: &at}

	clone := sess.Clone()
	*clone.LoggedOutAt = at.Add(time.Hour)
	assert.Equal(t, at, *sess.LoggedOutAt)
}
