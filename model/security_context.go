package model

import "time"

// RiskLevel is a coarse classification of how suspicious a session looks.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	}
	return 0
}

// Score is the numeric form stored on session records.
func (r RiskLevel) Score() int {
	switch r {
	case RiskLow:
		return 20
	case RiskMedium:
		return 50
	case RiskHigh:
		return 80
	}
	return 0
}

// AtLeast reports whether r is as severe as other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.rank() >= other.rank()
}

// HealthState is a liveness signal for the session, independent of risk.
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthWarning  HealthState = "warning"
	HealthCritical HealthState = "critical"
)

const UnknownPlace = "Unknown"

type Location struct {
	City      string   `bson:"city" json:"city"`
	Country   string   `bson:"country" json:"country"`
	Latitude  *float64 `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude *float64 `bson:"longitude,omitempty" json:"longitude,omitempty"`
	Source    string   `bson:"source,omitempty" json:"source,omitempty"` // geolocation, reverse_geocode, ip, none
}

func UnknownLocation() Location {
	return Location{City: UnknownPlace, Country: UnknownPlace, Source: "none"}
}

// Known reports whether the country was resolved.
func (l Location) Known() bool {
	return l.Country != "" && l.Country != UnknownPlace
}

func (l Location) String() string {
	switch {
	case l.City != "" && l.City != UnknownPlace && l.Known():
		return l.City + ", " + l.Country
	case l.Known():
		return l.Country
	}
	return "Unknown Location"
}

// SecurityContext is the in-memory record of one session's identity, device,
// location and risk state.
type SecurityContext struct {
	DeviceFingerprint DeviceFingerprint `bson:"device_fingerprint" json:"device_fingerprint"`
	IPAddress         string            `bson:"ip_address" json:"ip_address"`
	Location          Location          `bson:"location" json:"location"`
	RiskLevel         RiskLevel         `bson:"risk_level" json:"risk_level"`
	SessionID         string            `bson:"session_id" json:"session_id"`
	UserID            string            `bson:"user_id" json:"user_id"`
	UserAgent         string            `bson:"user_agent" json:"user_agent"`
	LoginTime         time.Time         `bson:"login_time" json:"login_time"`
	LastActivity      time.Time         `bson:"last_activity" json:"last_activity"`
	IsTrustedDevice   bool              `bson:"is_trusted_device" json:"is_trusted_device"`
	SecurityFlags     []string          `bson:"security_flags" json:"security_flags"`
}

// Clone returns a deep copy safe to hand to other layers.
func (c *SecurityContext) Clone() *SecurityContext {
	if c == nil {
		return nil
	}
	out := *c
	out.SecurityFlags = append([]string(nil), c.SecurityFlags...)
	out.DeviceFingerprint.Signals = append([]Signal(nil), c.DeviceFingerprint.Signals...)
	out.Location.Latitude = copyFloat(c.Location.Latitude)
	out.Location.Longitude = copyFloat(c.Location.Longitude)
	return &out
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
