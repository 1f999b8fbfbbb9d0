package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"hrsecurity/config"
	"hrsecurity/model"
	"hrsecurity/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// newTestDatabase connects to MONGO_URI and returns a throwaway database that
// is dropped when the test ends.
func newTestDatabase(t *testing.T) (*mongo.Database, config.DatabaseConfig) {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set; skipping MongoDB integration test")
	}

	cfg := config.DatabaseConfig{
		URI:                uri,
		MaxPoolSize:        10,
		MinPoolSize:        1,
		MaxConnIdleTime:    time.Minute,
		DatabaseName:       "hrsecurity_test_" + uuid.NewString()[:8],
		RetryWrites:        true,
		SessionsCollection: "sessions",
		EventsCollection:   "security_events",
		IdentityCollection: "users",
	}

	client, err := utils.NewMongoClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewMongoClient() error = %v", err)
	}
	db := client.Database(cfg.DatabaseName)
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	if err := SetupIndexes(context.Background(), db, cfg); err != nil {
		t.Fatalf("SetupIndexes() error = %v", err)
	}
	return db, cfg
}

func TestSessionRepo(t *testing.T) {
	db, cfg := newTestDatabase(t)
	ctx := context.Background()
	repo := GetSessionRepo(db, cfg.SessionsCollection)
	now := time.Now().UTC().Truncate(time.Millisecond)

	s := newSession(uuid.NewString(), "u1", now, 24*time.Hour)
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := repo.CreateSession(ctx, s); err == nil {
		t.Error("expected unique index to reject duplicate session id")
	}

	t.Run("UpdateActivity", func(t *testing.T) {
		if err := repo.UpdateActivity(ctx, s.SessionID, now.Add(time.Minute), 1); err != nil {
			t.Fatalf("UpdateActivity() error = %v", err)
		}
		if err := repo.UpdateActivity(ctx, s.SessionID, now, 1); err != nil {
			t.Fatalf("UpdateActivity() error = %v", err)
		}
		got, err := repo.GetSession(ctx, s.SessionID)
		if err != nil {
			t.Fatalf("GetSession() error = %v", err)
		}
		if !got.LastActivityAt.Equal(now.Add(time.Minute)) || got.ActivityCount != 2 {
			t.Errorf("got last=%v count=%d", got.LastActivityAt, got.ActivityCount)
		}
	})

	t.Run("ActiveForUser", func(t *testing.T) {
		got, err := repo.ActiveForUser(ctx, "u1", now)
		if err != nil {
			t.Fatalf("ActiveForUser() error = %v", err)
		}
		if len(got) != 1 {
			t.Errorf("ActiveForUser() returned %d sessions, want 1", len(got))
		}
	})

	t.Run("EndSession", func(t *testing.T) {
		if err := repo.EndSession(ctx, s.SessionID, model.LogoutReasonLoggedOut, now.Add(2*time.Minute)); err != nil {
			t.Fatalf("EndSession() error = %v", err)
		}
		if err := repo.EndSession(ctx, s.SessionID, model.LogoutReasonExpired, now.Add(3*time.Minute)); err != nil {
			t.Fatalf("second EndSession() error = %v", err)
		}
		got, _ := repo.GetSession(ctx, s.SessionID)
		if got.IsActive || got.LogoutReason != model.LogoutReasonLoggedOut {
			t.Errorf("got active=%v reason=%q", got.IsActive, got.LogoutReason)
		}
		if err := repo.EndSession(ctx, "missing", model.LogoutReasonLoggedOut, now); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("EndSession(missing) error = %v, want ErrSessionNotFound", err)
		}
	})

	t.Run("ExpireStale", func(t *testing.T) {
		old := newSession(uuid.NewString(), "u1", now.Add(-48*time.Hour), 24*time.Hour)
		if err := repo.CreateSession(ctx, old); err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		n, err := repo.ExpireStale(ctx, now)
		if err != nil || n != 1 {
			t.Fatalf("ExpireStale() = %d, %v; want 1, nil", n, err)
		}
	})
}

func TestEventAndIdentityRepos(t *testing.T) {
	db, cfg := newTestDatabase(t)
	ctx := context.Background()

	events := GetEventRepo(db, cfg.EventsCollection)
	e := &model.SecurityEvent{EventID: uuid.NewString(), Type: model.EventSignIn, UserID: "u1", Timestamp: time.Now()}
	if err := events.InsertEvent(ctx, e); err != nil {
		t.Fatalf("InsertEvent() error = %v", err)
	}
	got, err := events.ListUserEvents(ctx, "u1", 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("ListUserEvents() = %v, %v", got, err)
	}

	identities := GetIdentityRepo(db, cfg.IdentityCollection)
	id := &model.Identity{UserID: uuid.NewString(), Username: "alice", PasswordHash: "salt$hash", Status: model.StatusActive}
	if err := identities.AddIdentity(ctx, id); err != nil {
		t.Fatalf("AddIdentity() error = %v", err)
	}
	if err := identities.RecordLoginFailure(ctx, id.UserID); err != nil {
		t.Fatalf("RecordLoginFailure() error = %v", err)
	}
	found, err := identities.FindIdentityByUsername(ctx, "alice")
	if err != nil || found == nil || found.FailedAttempts != 1 {
		t.Fatalf("FindIdentityByUsername() = %+v, %v", found, err)
	}
	missing, err := identities.FindIdentityByID(ctx, "nobody")
	if err != nil || missing != nil {
		t.Errorf("FindIdentityByID(nobody) = %v, %v; want nil, nil", missing, err)
	}
}
