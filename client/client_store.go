package client

import "context"

// Store is the durable store for registered clients. Implementations map a
// duplicate client_id to errors.ErrUniqueViolation and missing rows to
// errors.ErrNotFound.
type Store interface {
	CreateClient(ctx context.Context, client *Client) error
	GetClientByID(ctx context.Context, id string) (*Client, error)
	GetClientByClientID(ctx context.Context, clientID string) (*Client, error)
	UpdateClient(ctx context.Context, client *Client) error
}
