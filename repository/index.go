package repository

import (
	"context"
	"fmt"
	"time"

	"hrsecurity/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func SetupIndexes(ctx context.Context, db *mongo.Database, cfg config.DatabaseConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sessionIndexes := []mongo.IndexModel{
		// one record per session token
		{
			Keys: bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().
				SetName("session_id_unique").
				SetUnique(true),
		},
		// active sessions of a user, newest activity first
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "is_active", Value: 1},
				{Key: "last_activity_at", Value: -1},
			},
			Options: options.Index().
				SetName("user_active_sessions"),
		},
		// stale session sweep
		{
			Keys: bson.D{
				{Key: "is_active", Value: 1},
				{Key: "expires_at", Value: 1},
			},
			Options: options.Index().
				SetName("active_expiry"),
		},
	}

	eventIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "event_id", Value: 1}},
			Options: options.Index().
				SetName("event_id_unique").
				SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().
				SetName("user_events_date"),
		},
		{
			Keys: bson.D{
				{Key: "type", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().
				SetName("type_date"),
		},
	}

	identityIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName("user_id_unique").
				SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "username", Value: 1}},
			Options: options.Index().
				SetName("username_unique").
				SetUnique(true),
		},
	}

	if _, err := db.Collection(cfg.SessionsCollection).Indexes().CreateMany(ctx, sessionIndexes); err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}

	if _, err := db.Collection(cfg.EventsCollection).Indexes().CreateMany(ctx, eventIndexes); err != nil {
		return fmt.Errorf("failed to create security event indexes: %w", err)
	}

	if _, err := db.Collection(cfg.IdentityCollection).Indexes().CreateMany(ctx, identityIndexes); err != nil {
		return fmt.Errorf("failed to create identity indexes: %w", err)
	}

	return nil
}
