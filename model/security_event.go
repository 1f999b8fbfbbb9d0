package model

import "time"

type EventType string

const (
	EventSignIn            EventType = "sign_in"
	EventLogout            EventType = "logout"
	EventSessionExpired    EventType = "session_expired"
	EventSessionSuperseded EventType = "session_superseded"
	EventHighRiskAlert     EventType = "high_risk_alert"
	EventHealthWarning     EventType = "health_warning"
)

// SecurityEvent is an append-only audit entry.
type SecurityEvent struct {
	EventID   string            `bson:"event_id" json:"event_id"`
	Type      EventType         `bson:"type" json:"type"`
	UserID    string            `bson:"user_id" json:"user_id"`
	SessionID string            `bson:"session_id" json:"session_id"`
	Context   SecurityContext   `bson:"context" json:"context"`
	Details   map[string]string `bson:"details,omitempty" json:"details,omitempty"`
	Timestamp time.Time         `bson:"timestamp" json:"timestamp"`
}
