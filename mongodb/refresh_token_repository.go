package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/gatekeep-io/gatekeep/domain"
	gkerrors "github.com/gatekeep-io/gatekeep/errors"
)

// RefreshTokenRepository implements domain.RefreshTokenRepository using
// MongoDB. Rows are never deleted here; the chain is kept for audit.
type RefreshTokenRepository struct {
	collection *mongo.Collection
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository and ensures
// its indexes.
func NewRefreshTokenRepository(ctx context.Context, db *mongo.Database) (*RefreshTokenRepository, error) {
	repo := &RefreshTokenRepository{
		collection: db.Collection(RefreshTokensCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "session_id", Value: 1}},
		},
	}
	if _, err := repo.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for refresh_tokens collection")
	}

	return repo, nil
}

// StoreRefreshToken inserts a new token row.
func (r *RefreshTokenRepository) StoreRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	if _, err := r.collection.InsertOne(ctx, token); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return gkerrors.NewUniqueViolation("refresh token")
		}
		log.Error().Err(err).Msg("Error storing refresh token in MongoDB")
		return err
	}
	return nil
}

// GetRefreshTokenByID retrieves a token by its identifier.
func (r *RefreshTokenRepository) GetRefreshTokenByID(ctx context.Context, id string) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, gkerrors.NewNotFound("refresh token")
		}
		log.Error().Err(err).Str("id", id).Msg("Error getting refresh token from MongoDB")
		return nil, err
	}
	return &token, nil
}

// ListRefreshTokensBySessionID returns a session's whole token chain.
func (r *RefreshTokenRepository) ListRefreshTokensBySessionID(ctx context.Context, sessionID string) ([]*domain.RefreshToken, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Error listing refresh tokens from MongoDB")
		return nil, err
	}
	defer cursor.Close(ctx)

	var tokens []*domain.RefreshToken
	if err = cursor.All(ctx, &tokens); err != nil {
		log.Error().Err(err).Msg("Error decoding listed refresh tokens from MongoDB")
		return nil, err
	}
	return tokens, nil
}

// RotateRefreshToken swaps token_hash on the same row, conditional on the
// previous hash. A lost race reports ErrConflict so a reused secret fails.
func (r *RefreshTokenRepository) RotateRefreshToken(ctx context.Context, id, oldHash, newHash string, usedAt time.Time) error {
	filter := bson.M{"_id": id, "token_hash": oldHash, "revoked": false}
	update := bson.M{"$set": bson.M{
		"token_hash": newHash,
		"used_at":    usedAt,
	}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Error rotating refresh token in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if count == 0 {
			return gkerrors.NewNotFound("refresh token")
		}
		return domain.ErrConflict
	}
	return nil
}

// RevokeRefreshToken marks a single token revoked. Idempotent.
func (r *RefreshTokenRepository) RevokeRefreshToken(ctx context.Context, id string) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"revoked": true}})
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Error revoking refresh token in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		return gkerrors.NewNotFound("refresh token")
	}
	return nil
}

// RevokeSessionTokens marks every token of a session revoked.
func (r *RefreshTokenRepository) RevokeSessionTokens(ctx context.Context, sessionID string) error {
	_, err := r.collection.UpdateMany(ctx, bson.M{"session_id": sessionID}, bson.M{"$set": bson.M{"revoked": true}})
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Error revoking session refresh tokens in MongoDB")
	}
	return err
}

var _ domain.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
