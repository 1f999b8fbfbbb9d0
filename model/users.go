package model

import "time"

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusOnLeave   = "on_leave"
	StatusExited    = "exited"
)

var privilegedRoles = map[string]bool{
	"admin":         true,
	"hr_admin":      true,
	"payroll_admin": true,
}

// Identity is an employee account as the identity provider reports it.
type Identity struct {
	UserID           string    `bson:"user_id" json:"user_id"`
	Username         string    `bson:"username" json:"username"`
	Email            string    `bson:"email" json:"email"`
	Role             string    `bson:"role" json:"role"`
	Status           string    `bson:"status" json:"status"` // employment/account status
	PasswordHash     string    `bson:"password" json:"-"`
	TwoFactorEnabled bool      `bson:"two_factor_enabled" json:"two_factor_enabled"`
	TwoFactorSecret  string    `bson:"two_factor_secret" json:"-"`
	FailedAttempts   int       `bson:"failed_attempts" json:"failed_attempts"`
	PreviouslyLocked bool      `bson:"previously_locked" json:"previously_locked"`
	LastLoginAt      time.Time `bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
	CreatedAt        time.Time `bson:"created_at" json:"created_at"`
}

func (i *Identity) IsPrivileged() bool {
	return privilegedRoles[i.Role]
}

func (i *Identity) IsActive() bool {
	return i.Status == StatusActive
}

type LoginRequest struct {
	Username       string        `json:"username" binding:"required"`
	Password       string        `json:"password" binding:"required"`
	TwoFactorCode  string        `json:"two_factor_code,omitempty"`
	RememberDevice bool          `json:"remember_device,omitempty"`
	Client         ClientSignals `json:"client"`
}
