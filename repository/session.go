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
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepo struct {
	MongoCollection *mongo.Collection
}

func GetSessionRepo(db *mongo.Database, collectionName string) *SessionRepo {
	return &SessionRepo{
		MongoCollection: db.Collection(collectionName),
	}
}

func (r *SessionRepo) CreateSession(ctx context.Context, session *model.Session) error {
	timer := utils.TrackDBOperation("insert", "sessions")
	defer timer.ObserveDuration()

	if session == nil {
		utils.TrackError("database", "nil_session")
		return fmt.Errorf("session cannot be nil")
	}

	if session.SessionID == "" || session.UserID == "" {
		utils.TrackError("database", "invalid_session_data")
		return fmt.Errorf("invalid session data: missing required fields")
	}

	if _, err := r.MongoCollection.InsertOne(ctx, session); err != nil {
		utils.TrackError("database", "session_creation_failed")
		return fmt.Errorf("failed to create session in database: %w", err)
	}

	return nil
}

func (r *SessionRepo) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	timer := utils.TrackDBOperation("find", "sessions")
	defer timer.ObserveDuration()

	if sessionID == "" {
		utils.TrackError("database", "empty_session_id")
		return nil, fmt.Errorf("sessionID cannot be empty")
	}

	var session model.Session
	err := r.MongoCollection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}
		utils.TrackError("database", "session_fetch_failed")
		return nil, fmt.Errorf("failed to fetch session from database: %w", err)
	}

	return &session, nil
}

// UpdateActivity only ever moves last_activity_at forward.
func (r *SessionRepo) UpdateActivity(ctx context.Context, sessionID string, at time.Time, increment int64) error {
	timer := utils.TrackDBOperation("update", "sessions")
	defer timer.ObserveDuration()

	update := bson.M{
		"$max": bson.M{"last_activity_at": at},
	}
	if increment != 0 {
		update["$inc"] = bson.M{"activity_count": increment}
	}

	result, err := r.MongoCollection.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "is_active": true},
		update,
	)
	if err != nil {
		utils.TrackError("database", "session_update_failed")
		return fmt.Errorf("failed to update session activity: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// EndSession marks an active record inactive. Ending an already ended record
// is a no-op.
func (r *SessionRepo) EndSession(ctx context.Context, sessionID, reason string, endedAt time.Time) error {
	timer := utils.TrackDBOperation("update", "sessions")
	defer timer.ObserveDuration()

	result, err := r.MongoCollection.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "is_active": true},
		bson.M{"$set": bson.M{
			"is_active":     false,
			"logout_reason": reason,
			"ended_at":      endedAt,
		}},
	)
	if err != nil {
		utils.TrackError("database", "session_end_failed")
		return fmt.Errorf("failed to end session: %w", err)
	}

	if result.MatchedCount == 0 {
		n, err := r.MongoCollection.CountDocuments(ctx, bson.M{"session_id": sessionID})
		if err != nil {
			return fmt.Errorf("failed to look up session: %w", err)
		}
		if n == 0 {
			return ErrSessionNotFound
		}
	}
	return nil
}

func (r *SessionRepo) ActiveForUser(ctx context.Context, userID string, now time.Time) ([]*model.Session, error) {
	timer := utils.TrackDBOperation("find", "sessions")
	defer timer.ObserveDuration()

	if userID == "" {
		utils.TrackError("database", "empty_user_id")
		return nil, fmt.Errorf("userID cannot be empty")
	}

	opts := options.Find().SetSort(bson.M{"last_activity_at": -1})
	cursor, err := r.MongoCollection.Find(ctx,
		bson.M{
			"user_id":    userID,
			"is_active":  true,
			"expires_at": bson.M{"$gte": now},
		}, opts)
	if err != nil {
		utils.TrackError("database", "session_fetch_failed")
		return nil, fmt.Errorf("failed to fetch active sessions: %w", err)
	}
	defer cursor.Close(ctx)

	sessions := []*model.Session{}
	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}

	return sessions, nil
}

func (r *SessionRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	timer := utils.TrackDBOperation("update_many", "sessions")
	defer timer.ObserveDuration()

	result, err := r.MongoCollection.UpdateMany(ctx,
		bson.M{"is_active": true, "expires_at": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{
			"is_active":     false,
			"logout_reason": model.LogoutReasonExpired,
			"ended_at":      now,
		}},
	)
	if err != nil {
		utils.TrackError("database", "session_expire_failed")
		return 0, fmt.Errorf("failed to expire stale sessions: %w", err)
	}

	return result.ModifiedCount, nil
}
