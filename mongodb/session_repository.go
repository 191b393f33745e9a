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

// SessionRepository implements domain.SessionRepository using MongoDB.
type SessionRepository struct {
	collection *mongo.Collection
}

// NewSessionRepository creates a new SessionRepository and ensures the
// indexes the validation paths depend on.
func NewSessionRepository(ctx context.Context, db *mongo.Database) (*SessionRepository, error) {
	repo := &SessionRepository{
		collection: db.Collection(SessionsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "access_token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_active", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "client_id", Value: 1}},
		},
	}
	if _, err := repo.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		// Might already exist; validation still works without them.
		log.Warn().Err(err).Msg("Issue creating indexes for sessions collection")
	}

	return repo, nil
}

// StoreSession inserts a new session row.
func (r *SessionRepository) StoreSession(ctx context.Context, session *domain.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return gkerrors.NewUniqueViolation("session")
		}
		log.Error().Err(err).Msg("Error storing session in MongoDB")
		return err
	}
	return nil
}

// GetSessionByID retrieves a session by its primary ID.
func (r *SessionRepository) GetSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetSessionByAccessToken retrieves the session holding an access token.
func (r *SessionRepository) GetSessionByAccessToken(ctx context.Context, accessToken string) (*domain.Session, error) {
	return r.findOne(ctx, bson.M{"access_token": accessToken})
}

func (r *SessionRepository) findOne(ctx context.Context, filter bson.M) (*domain.Session, error) {
	var session domain.Session
	err := r.collection.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, gkerrors.NewNotFound("session")
		}
		log.Error().Err(err).Msg("Error getting session from MongoDB")
		return nil, err
	}
	return &session, nil
}

// ListSessionsByUserID returns a user's sessions, newest first.
func (r *SessionRepository) ListSessionsByUserID(ctx context.Context, userID string) ([]*domain.Session, error) {
	return r.list(ctx, bson.M{"user_id": userID})
}

// ListSessionsByClientID returns the sessions opened under a client.
func (r *SessionRepository) ListSessionsByClientID(ctx context.Context, clientID string) ([]*domain.Session, error) {
	return r.list(ctx, bson.M{"client_id": clientID})
}

func (r *SessionRepository) list(ctx context.Context, filter bson.M) ([]*domain.Session, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		log.Error().Err(err).Msg("Error listing sessions from MongoDB")
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []*domain.Session
	if err = cursor.All(ctx, &sessions); err != nil {
		log.Error().Err(err).Msg("Error decoding listed sessions from MongoDB")
		return nil, err
	}
	return sessions, nil
}

// RotateAccessToken swaps the stored access token with a compare-and-swap on
// the pre-rotation value. The conditional filter is what guarantees that two
// racing validations cannot both commit against the same token.
func (r *SessionRepository) RotateAccessToken(ctx context.Context, sessionID, oldToken, newToken, ip string, usedAt time.Time) error {
	filter := bson.M{"_id": sessionID, "access_token": oldToken, "is_active": true}
	update := bson.M{"$set": bson.M{
		"access_token": newToken,
		"ip_address":   ip,
		"last_used_at": usedAt,
	}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Error rotating access token in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": sessionID})
		if err != nil {
			return err
		}
		if count == 0 {
			return gkerrors.NewNotFound("session")
		}
		return domain.ErrConflict
	}
	return nil
}

// CloseSession marks a session inactive. A second close matches no active row
// and is a no-op.
func (r *SessionRepository) CloseSession(ctx context.Context, sessionID string, at time.Time) error {
	filter := bson.M{"_id": sessionID, "is_active": true}
	update := bson.M{"$set": bson.M{
		"is_active":     false,
		"logged_out_at": at,
	}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Error closing session in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": sessionID})
		if err != nil {
			return err
		}
		if count == 0 {
			return gkerrors.NewNotFound("session")
		}
	}
	return nil
}

// DeleteSession removes a session row. The refresh token chain it owns is
// removed with it.
func (r *SessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": sessionID})
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Error deleting session from MongoDB")
		return err
	}
	if result.DeletedCount == 0 {
		return gkerrors.NewNotFound("session")
	}
	if _, err := r.collection.Database().Collection(RefreshTokensCollection).
		DeleteMany(ctx, bson.M{"session_id": sessionID}); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Error deleting session's refresh tokens from MongoDB")
		return err
	}
	return nil
}

var _ domain.SessionRepository = (*SessionRepository)(nil)
