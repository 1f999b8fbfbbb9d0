package repository

import (
	"context"
	"fmt"

	"hrsecurity/model"
	"hrsecurity/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventRepo is append-only: events are inserted and read, never changed.
type EventRepo struct {
	MongoCollection *mongo.Collection
}

func GetEventRepo(db *mongo.Database, collectionName string) *EventRepo {
	return &EventRepo{
		MongoCollection: db.Collection(collectionName),
	}
}

func (r *EventRepo) InsertEvent(ctx context.Context, event *model.SecurityEvent) error {
	timer := utils.TrackDBOperation("insert", "security_events")
	defer timer.ObserveDuration()

	if event == nil || event.EventID == "" {
		utils.TrackError("database", "invalid_event_data")
		return fmt.Errorf("invalid event data: missing event id")
	}

	if _, err := r.MongoCollection.InsertOne(ctx, event); err != nil {
		utils.TrackError("database", "event_insert_failed")
		return fmt.Errorf("failed to insert security event: %w", err)
	}
	return nil
}

// ListUserEvents returns the newest events of an identity first.
func (r *EventRepo) ListUserEvents(ctx context.Context, userID string, limit int64) ([]model.SecurityEvent, error) {
	timer := utils.TrackDBOperation("find", "security_events")
	defer timer.ObserveDuration()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.MongoCollection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		utils.TrackError("database", "event_fetch_failed")
		return nil, fmt.Errorf("failed to fetch security events: %w", err)
	}
	defer cursor.Close(ctx)

	events := []model.SecurityEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode security events: %w", err)
	}
	return events, nil
}
