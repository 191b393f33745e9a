// Package mongodb implements the engine's repositories on MongoDB.
package mongodb

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

const (
	SessionsCollection      = "sessions"       // user login sessions
	RefreshTokensCollection = "refresh_tokens" // refresh token rotation chains
	ClientsCollection       = "oauth_clients"  // registered OAuth clients
)

var (
	clientInstance *mongo.Client
	clientOnce     sync.Once
	dbInstance     *mongo.Database
)

// Init initializes the MongoDB client and database instances. It should be
// called once at application startup.
func Init(ctx context.Context, uri, dbName string) error {
	var err error
	clientOnce.Do(func() {
		log.Info().Str("uri", uri).Msg("Initializing MongoDB client")
		clientOptions := options.Client().ApplyURI(uri)
		clientOptions.SetConnectTimeout(10 * time.Second)
		clientOptions.SetMonitor(otelmongo.NewMonitor())

		client, clientErr := mongo.Connect(clientOptions)
		if clientErr != nil {
			err = clientErr
			log.Error().Err(clientErr).Msg("Failed to connect to MongoDB")
			return
		}

		if pingErr := client.Ping(ctx, readpref.Primary()); pingErr != nil {
			err = pingErr
			log.Error().Err(pingErr).Msg("Failed to ping MongoDB")
			return
		}

		clientInstance = client
		dbInstance = client.Database(dbName)
		log.Info().Str("database", dbName).Msg("MongoDB connection established")
	})
	return err
}

// Database returns the initialized database handle.
func Database() (*mongo.Database, error) {
	if dbInstance == nil {
		return nil, errors.New("mongodb is not initialized, call Init first")
	}
	return dbInstance, nil
}

// Disconnect closes the MongoDB connection.
func Disconnect(ctx context.Context) error {
	if clientInstance == nil {
		return nil
	}
	return clientInstance.Disconnect(ctx)
}
