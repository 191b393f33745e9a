package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	gkerrors "github.com/gatekeep-io/gatekeep/errors"
)

const secretLength = 32

// Registry validates client identity, secrets, scopes and grant types for
// multi-tenant access. The engine only ever reads clients; creation and
// revocation are administrative operations.
type Registry struct {
	store      Store
	bcryptCost int
}

// NewRegistry creates a client registry backed by the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store, bcryptCost: bcrypt.DefaultCost}
}

// CreateInput carries the administrative parameters for registering a client.
type CreateInput struct {
	Name           string
	ClientID       string
	RedirectURL    string
	GrantTypes     []string
	Scopes         []string
	IsConfidential bool
}

// Create registers a new client. Confidential clients receive a generated
// secret which is returned in plaintext exactly once; only its bcrypt hash is
// persisted. Fails with ErrUniqueViolation when the client_id is taken.
func (r *Registry) Create(ctx context.Context, in CreateInput) (*Client, string, error) {
	if in.ClientID == "" {
		return nil, "", errors.New("client id is required")
	}
	if in.Name == "" {
		return nil, "", errors.New("client name is required")
	}

	now := time.Now().UTC()
	c := &Client{
		ID:             uuid.NewString(),
		Name:           in.Name,
		ClientID:       in.ClientID,
		RedirectURL:    in.RedirectURL,
		GrantTypes:     append([]string(nil), in.GrantTypes...),
		Scopes:         append([]string(nil), in.Scopes...),
		IsConfidential: in.IsConfidential,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var plaintextSecret string
	if in.IsConfidential {
		plaintextSecret = generateRandomString(secretLength)
		hashed, err := bcrypt.GenerateFromPassword([]byte(plaintextSecret), r.bcryptCost)
		if err != nil {
			log.Error().Err(err).Msg("Failed to hash client secret during registration")
			return nil, "", fmt.Errorf("hashing client secret: %w", err)
		}
		c.SecretHash = string(hashed)
	}

	if err := r.store.CreateClient(ctx, c); err != nil {
		log.Error().Err(err).Str("client_id", in.ClientID).Msg("Failed to create client")
		return nil, "", err
	}
	return c, plaintextSecret, nil
}

// Check loads a client by its public client_id and verifies, only for the
// fields the caller supplied, confidentiality flag, secret, scope set
// equality, grant-type set equality and redirect URL. A supplied-but-
// mismatched field fails with ErrUnauthorized; stored data that the caller
// expects but the record lacks fails with ErrIntegrityViolation.
func (r *Registry) Check(ctx context.Context, chk Check) (*Client, error) {
	c, err := r.store.GetClientByClientID(ctx, chk.ClientID)
	if err != nil {
		return nil, err
	}
	if c.Revoked {
		return nil, gkerrors.NewUnauthorized("client is revoked")
	}

	if chk.IsConfidential != nil && *chk.IsConfidential != c.IsConfidential {
		return nil, gkerrors.NewUnauthorized("client confidentiality mismatch")
	}

	if chk.Secret != nil {
		if c.SecretHash == "" {
			return nil, gkerrors.NewIntegrityViolation("client has no stored secret")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(*chk.Secret)); err != nil {
			return nil, gkerrors.NewUnauthorized("client secret mismatch")
		}
	} else if c.IsConfidential {
		// A confidential client must present its secret on every check.
		return nil, gkerrors.NewUnauthorized("client secret is required")
	}

	if chk.Scopes != nil && !equalSets(chk.Scopes, c.Scopes) {
		return nil, gkerrors.NewUnauthorized("client scope mismatch")
	}
	if chk.GrantTypes != nil && !equalSets(chk.GrantTypes, c.GrantTypes) {
		return nil, gkerrors.NewUnauthorized("client grant type mismatch")
	}

	if chk.RedirectURL != nil {
		if c.RedirectURL == "" {
			return nil, gkerrors.NewIntegrityViolation("client has no stored redirect url")
		}
		if *chk.RedirectURL != c.RedirectURL {
			return nil, gkerrors.NewUnauthorized("client redirect url mismatch")
		}
	}

	return c, nil
}

// Close revokes a client. Future checks against it fail with ErrUnauthorized.
func (r *Registry) Close(ctx context.Context, id string) error {
	c, err := r.store.GetClientByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Revoked {
		return nil
	}
	c.Revoked = true
	c.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateClient(ctx, c); err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to revoke client")
		return err
	}
	return nil
}

// equalSets compares two string slices as sets: order and duplicates are
// ignored, membership must match exactly.
func equalSets(a, b []string) bool {
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	got := make(map[string]struct{}, len(b))
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			return false
		}
		got[v] = struct{}{}
	}
	return len(seen) == len(got)
}
