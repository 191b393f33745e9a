package mongodb

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/gatekeep-io/gatekeep/client"
	gkerrors "github.com/gatekeep-io/gatekeep/errors"
)

// ClientRepository implements the client.Store interface using MongoDB.
type ClientRepository struct {
	coll *mongo.Collection
}

// NewClientRepository creates a new ClientRepository and ensures the unique
// client_id index.
func NewClientRepository(ctx context.Context, db *mongo.Database) (*ClientRepository, error) {
	repo := &ClientRepository{
		coll: db.Collection(ClientsCollection),
	}

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "client_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := repo.coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		log.Warn().Err(err).Msg("Issue creating index for oauth_clients collection")
	}

	return repo, nil
}

// CreateClient implements the client.Store interface.
func (s *ClientRepository) CreateClient(ctx context.Context, c *client.Client) error {
	if _, err := s.coll.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return gkerrors.NewUniqueViolation("client_id " + c.ClientID)
		}
		log.Error().Err(err).Msg("Error storing client in MongoDB")
		return err
	}
	return nil
}

// GetClientByID implements the client.Store interface.
func (s *ClientRepository) GetClientByID(ctx context.Context, id string) (*client.Client, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetClientByClientID implements the client.Store interface.
func (s *ClientRepository) GetClientByClientID(ctx context.Context, clientID string) (*client.Client, error) {
	return s.findOne(ctx, bson.M{"client_id": clientID})
}

func (s *ClientRepository) findOne(ctx context.Context, filter bson.M) (*client.Client, error) {
	var cli client.Client
	err := s.coll.FindOne(ctx, filter).Decode(&cli)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, gkerrors.NewNotFound("client")
		}
		log.Error().Err(err).Msg("Error getting client from MongoDB")
		return nil, err
	}
	return &cli, nil
}

// UpdateClient implements the client.Store interface.
func (s *ClientRepository) UpdateClient(ctx context.Context, c *client.Client) error {
	result, err := s.coll.ReplaceOne(ctx, bson.M{"_id": c.ID}, c)
	if err != nil {
		log.Error().Err(err).Str("id", c.ID).Msg("Error updating client in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		return gkerrors.NewNotFound("client")
	}
	return nil
}

var _ client.Store = (*ClientRepository)(nil)
