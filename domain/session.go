package domain

import "time"

// Session represents one authenticated client-device binding. Exactly one
// access token value is valid at any instant: every successful validation
// replaces it, so a replayed pre-rotation token can never validate again.
type Session struct {
	ID          string     `bson:"_id,omitempty" json:"id"`
	UserID      string     `bson:"user_id" json:"user_id"`
	ClientID    string     `bson:"client_id,omitempty" json:"client_id,omitempty"` // registered OAuth client, empty for first-party sessions
	AccessToken string     `bson:"access_token" json:"access_token"`
	IPAddress   string     `bson:"ip_address,omitempty" json:"ip_address,omitempty"` // value seen at open/rotate time
	UserAgent   string     `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	IsActive    bool       `bson:"is_active" json:"is_active"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	LastUsedAt  time.Time  `bson:"last_used_at,omitempty" json:"last_used_at,omitempty"`
	LoggedOutAt *time.Time `bson:"logged_out_at,omitempty" json:"logged_out_at,omitempty"`
}

// Clone returns a deep copy. Repositories hand out copies so callers never
// alias rows that a concurrent rotation may rewrite.
func (s *Session) Clone() *Session {
	out := *s
	if s.LoggedOutAt != nil {
		at := *s.LoggedOutAt
		out.LoggedOutAt = &at
	}
	return &out
}
