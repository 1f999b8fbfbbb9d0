package model

import "time"

const (
	LogoutReasonExpired    = "expired"
	LogoutReasonLoggedOut  = "logged_out"
	LogoutReasonSuperseded = "superseded"
)

// Session is the persisted counterpart of a SecurityContext.
type Session struct {
	SessionID      string    `bson:"session_id" json:"session_id"`
	UserID         string    `bson:"user_id" json:"user_id"`
	DisplayName    string    `bson:"display_name" json:"display_name"`         // "Chrome on Windows (Berlin, DE)"
	DeviceInfo     string    `bson:"device_info" json:"device_info"`           // "Chrome on Windows (Desktop)"
	Browser        string    `bson:"browser" json:"browser"`
	OS             string    `bson:"os" json:"os"`
	DeviceType     string    `bson:"device_type" json:"device_type"`
	Fingerprint    string    `bson:"fingerprint" json:"fingerprint"`
	IPAddress      string    `bson:"ip_address" json:"ip_address"`
	Location       Location  `bson:"location" json:"location"`
	RiskLevel      RiskLevel `bson:"risk_level" json:"risk_level"`
	RiskScore      int       `bson:"risk_score" json:"risk_score"`
	IsActive       bool      `bson:"is_active" json:"is_active"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt      time.Time `bson:"expires_at" json:"expires_at"`
	LastActivityAt time.Time `bson:"last_activity_at" json:"last_activity_at"`
	ActivityCount  int64     `bson:"activity_count" json:"activity_count"`
	LogoutReason   string    `bson:"logout_reason,omitempty" json:"logout_reason,omitempty"`
	EndedAt        time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
}

// ActiveAt reports whether the session is still usable at now. A session whose
// TTL has elapsed is inactive even if nobody ever ended it.
func (s *Session) ActiveAt(now time.Time) bool {
	return s.IsActive && !now.After(s.ExpiresAt)
}

// SessionState is the lifecycle state of a session owned by the manager.
type SessionState string

const (
	SessionCreated   SessionState = "created"
	SessionActive    SessionState = "active"
	SessionExpired   SessionState = "expired"
	SessionLoggedOut SessionState = "logged_out"
)

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == SessionExpired || s == SessionLoggedOut
}
