package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hrsecurity/model"
	"hrsecurity/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func GetIdentityRepo(db *mongo.Database, collectionName string) *IdentityRepo {
	return &IdentityRepo{
		MongoCollection: db.Collection(collectionName),
	}
}

// IdentityRepo reads employee accounts and keeps their sign-in counters.
type IdentityRepo struct {
	MongoCollection *mongo.Collection
}

func (r *IdentityRepo) AddIdentity(ctx context.Context, identity *model.Identity) error {
	timer := utils.TrackDBOperation("insert", "users")
	defer timer.ObserveDuration()

	if identity.UserID == "" || identity.Username == "" || identity.PasswordHash == "" {
		utils.TrackError("database", "invalid_user_data")
		return errors.New("user id, username and password required")
	}

	if _, err := r.MongoCollection.InsertOne(ctx, identity); err != nil {
		utils.TrackError("database", "user_creation_failed")
		return fmt.Errorf("failed to add identity: %w", err)
	}
	return nil
}

func (r *IdentityRepo) FindIdentityByUsername(ctx context.Context, username string) (*model.Identity, error) {
	return r.findOne(ctx, bson.D{{Key: "username", Value: username}})
}

func (r *IdentityRepo) FindIdentityByID(ctx context.Context, userID string) (*model.Identity, error) {
	return r.findOne(ctx, bson.D{{Key: "user_id", Value: userID}})
}

// findOne returns nil, nil when nothing matches.
func (r *IdentityRepo) findOne(ctx context.Context, filter bson.D) (*model.Identity, error) {
	timer := utils.TrackDBOperation("find", "users")
	defer timer.ObserveDuration()

	var identity model.Identity
	err := r.MongoCollection.FindOne(ctx, filter).Decode(&identity)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		utils.TrackError("database", "user_lookup_error")
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	return &identity, nil
}

func (r *IdentityRepo) RecordLoginFailure(ctx context.Context, userID string) error {
	timer := utils.TrackDBOperation("update", "users")
	defer timer.ObserveDuration()

	_, err := r.MongoCollection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$inc": bson.M{"failed_attempts": 1}},
	)
	if err != nil {
		utils.TrackError("database", "user_update_failed")
		return fmt.Errorf("failed to record login failure: %w", err)
	}
	return nil
}

func (r *IdentityRepo) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	timer := utils.TrackDBOperation("update", "users")
	defer timer.ObserveDuration()

	_, err := r.MongoCollection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{
			"failed_attempts": 0,
			"last_login_at":   at,
		}},
	)
	if err != nil {
		utils.TrackError("database", "user_update_failed")
		return fmt.Errorf("failed to record login success: %w", err)
	}
	return nil
}
