package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hrsecurity/model"
	"hrsecurity/utils"

	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTwoFactorRequired  = errors.New("two-factor code required")
	ErrInvalidTwoFactor   = errors.New("invalid two-factor code")
)

// IdentityStore is the identity data the login flow reads and updates.
type IdentityStore interface {
	IdentityLookup
	FindIdentityByUsername(ctx context.Context, username string) (*model.Identity, error)
	RecordLoginFailure(ctx context.Context, userID string) error
	RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error
}

// Authenticator checks a password and, when enabled, a TOTP code.
type Authenticator struct {
	identities IdentityStore
	clock      utils.Clock
	logger     *zap.Logger
}

func NewAuthenticator(identities IdentityStore, clock utils.Clock, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{identities: identities, clock: clock, logger: logger}
}

// Authenticate returns the identity as it was before this sign-in, so failed
// attempts and the previous login time still feed the risk assessment.
func (a *Authenticator) Authenticate(ctx context.Context, req model.LoginRequest) (*model.Identity, error) {
	identity, err := a.identities.FindIdentityByUsername(ctx, req.Username)
	if err != nil {
		utils.TrackAuthAttempt("error", "password")
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	if identity == nil {
		utils.TrackAuthAttempt("failure", "password")
		return nil, ErrInvalidCredentials
	}

	ok, err := VerifyPassword(identity.PasswordHash, req.Password)
	if err != nil {
		a.logger.Warn("stored password hash unreadable", zap.String("user_id", identity.UserID), zap.Error(err))
	}
	if !ok {
		a.recordFailure(ctx, identity.UserID)
		utils.TrackAuthAttempt("failure", "password")
		return nil, ErrInvalidCredentials
	}

	if identity.TwoFactorEnabled {
		if req.TwoFactorCode == "" {
			utils.TrackAuthAttempt("failure", "totp")
			return nil, ErrTwoFactorRequired
		}
		if !ValidateTOTP(identity.TwoFactorSecret, req.TwoFactorCode, a.clock.Now()) {
			a.recordFailure(ctx, identity.UserID)
			utils.TrackAuthAttempt("failure", "totp")
			return nil, ErrInvalidTwoFactor
		}
	}

	snapshot := *identity
	if err := a.identities.RecordLoginSuccess(ctx, identity.UserID, a.clock.Now()); err != nil {
		a.logger.Warn("failed to record login success", zap.String("user_id", identity.UserID), zap.Error(err))
		utils.TrackError("auth", "record_success")
	}
	utils.TrackAuthAttempt("success", "password")
	return &snapshot, nil
}

func (a *Authenticator) recordFailure(ctx context.Context, userID string) {
	if err := a.identities.RecordLoginFailure(ctx, userID); err != nil {
		a.logger.Warn("failed to record login failure", zap.String("user_id", userID), zap.Error(err))
		utils.TrackError("auth", "record_failure")
	}
}
