package model

import "time"

// Risk factor tags recorded in SecurityContext.SecurityFlags.
const (
	FlagUnusualHour      = "unusual_hour"
	FlagUntrustedDevice  = "untrusted_device"
	FlagFailedAttempts   = "failed_attempts"
	FlagPreviouslyLocked = "previously_locked"
	FlagDormantAccount   = "dormant_account"
	FlagLocationChange   = "location_change"
	FlagInactiveAccount  = "inactive_account"
	FlagPrivilegedRole   = "privileged_role"
)

type RiskFactors struct {
	UserID           string
	LoginTime        time.Time
	TrustedDevice    bool
	FailedAttempts   int
	PreviouslyLocked bool
	LastLoginAt      time.Time // zero when the identity never signed in before
	Country          string
	AccountActive    bool
	Privileged       bool
}

type RiskAssessment struct {
	Level RiskLevel `json:"level"`
	Score int       `json:"score"`
	Flags []string  `json:"flags,omitempty"`
}
