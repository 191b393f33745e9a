package domain

import "time"

// RefreshToken is a single-use credential in a rotation chain anchored to a
// session. Only the comparison hash of the live secret is stored. Rows are
// never deleted: a successful use rotates the hash in place and the row
// continues its life under the new secret, which keeps the chain auditable.
type RefreshToken struct {
	ID        string     `bson:"_id,omitempty" json:"id"`
	SessionID string     `bson:"session_id" json:"session_id"`
	TokenHash string     `bson:"token_hash" json:"-"`
	Revoked   bool       `bson:"revoked" json:"revoked"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time  `bson:"expires_at" json:"expires_at"`
	UsedAt    *time.Time `bson:"used_at,omitempty" json:"used_at,omitempty"`
}

// Expired reports whether the token's lifetime has passed. Expiry is derived
// from the row on every read, never trusted to a previously written flag.
func (t *RefreshToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// Live reports whether the token can still be presented: not revoked and not
// expired. At most one live token per session is the steady state, though
// racing issuance may produce transient duplicates.
func (t *RefreshToken) Live(now time.Time) bool {
	return !t.Revoked && !t.Expired(now)
}

// Clone returns a deep copy of the token.
func (t *RefreshToken) Clone() *RefreshToken {
	out := *t
	if t.UsedAt != nil {
		at := *t.UsedAt
		out.UsedAt = &at
	}
	return &out
}
