// Package client holds the OAuth client registry: the entities, store
// interface and checks for registered consuming applications.
package client

import (
	"crypto/rand"
	"time"
)

// Client represents a registered consuming application or bot.
//
//nolint:tagliatelle
type Client struct {
	ID             string    `bson:"_id,omitempty" json:"id"`
	Name           string    `bson:"name" json:"name"`
	ClientID       string    `bson:"client_id" json:"client_id"`
	SecretHash     string    `bson:"client_secret,omitempty" json:"-"` // bcrypt hash, empty for public clients
	RedirectURL    string    `bson:"redirect_url,omitempty" json:"redirect_url,omitempty"`
	GrantTypes     []string  `bson:"grant_types" json:"grant_types"`
	Scopes         []string  `bson:"scopes" json:"scopes"`
	IsConfidential bool      `bson:"is_confidential" json:"is_confidential"`
	Revoked        bool      `bson:"revoked" json:"revoked,omitempty"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy of the client.
func (c *Client) Clone() *Client {
	out := *c
	out.GrantTypes = append([]string(nil), c.GrantTypes...)
	out.Scopes = append([]string(nil), c.Scopes...)
	return &out
}

// Check describes the fields a caller wants verified against a stored client.
// Nil pointer and nil slice fields are skipped entirely; supplied fields must
// match exactly. Scopes and grant types compare by set equality, not subset.
type Check struct {
	ClientID       string
	Secret         *string
	Scopes         []string
	GrantTypes     []string
	RedirectURL    *string
	IsConfidential *bool
}

// generateRandomString creates a cryptographically secure random string of the
// specified length.
func generateRandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	_, _ = rand.Read(b)

	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}

	return string(b)
}
