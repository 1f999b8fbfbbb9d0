package services

import (
	"context"
	"time"

	"hrsecurity/config"
	"hrsecurity/model"
	"hrsecurity/utils"

	"go.uber.org/zap"
)

// RiskEngine classifies a sign-in by counting triggered risk factors. The
// only side effect is reading and updating the last-seen country.
type RiskEngine struct {
	cfg       config.SecurityConfig
	loc       *time.Location
	countries CountryCache
	logger    *zap.Logger
}

func NewRiskEngine(cfg config.SecurityConfig, countries CountryCache, logger *zap.Logger) *RiskEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskEngine{
		cfg:       cfg,
		loc:       cfg.RiskLocation(),
		countries: countries,
		logger:    logger,
	}
}

// Assess evaluates f and returns the level together with the flags that drove it.
func (e *RiskEngine) Assess(ctx context.Context, f model.RiskFactors) model.RiskAssessment {
	var flags []string

	if e.outsideNormalHours(f.LoginTime) {
		flags = append(flags, model.FlagUnusualHour)
	}
	if !f.TrustedDevice {
		flags = append(flags, model.FlagUntrustedDevice)
	}
	if f.FailedAttempts > e.cfg.FailedAttemptsThreshold {
		flags = append(flags, model.FlagFailedAttempts)
	}
	if f.PreviouslyLocked {
		flags = append(flags, model.FlagPreviouslyLocked)
	}
	if e.dormant(f.LoginTime, f.LastLoginAt) {
		flags = append(flags, model.FlagDormantAccount)
	}
	moved := e.countryChanged(ctx, f.UserID, f.Country)
	if moved {
		flags = append(flags, model.FlagLocationChange)
	}
	if !f.AccountActive {
		flags = append(flags, model.FlagInactiveAccount)
	}
	if f.Privileged {
		flags = append(flags, model.FlagPrivilegedRole)
	}

	level := e.Classify(len(flags))
	utils.TrackRiskAssessment(string(level), flags)

	// a high-risk sign-in never moves the baseline
	if moved && level != model.RiskHigh {
		e.rememberCountry(ctx, f.UserID, f.Country)
	}

	return model.RiskAssessment{Level: level, Score: level.Score(), Flags: flags}
}

// Classify maps a factor count to a level: below MediumRiskFactors is low,
// from HighRiskFactors on it is high.
func (e *RiskEngine) Classify(factors int) model.RiskLevel {
	switch {
	case factors >= e.cfg.HighRiskFactors:
		return model.RiskHigh
	case factors >= e.cfg.MediumRiskFactors:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// outsideNormalHours checks the [start, end) window in the risk timezone.
func (e *RiskEngine) outsideNormalHours(t time.Time) bool {
	h := t.In(e.loc).Hour()
	return h < e.cfg.NormalHoursStart || h >= e.cfg.NormalHoursEnd
}

// dormant is false for identities that never signed in before.
func (e *RiskEngine) dormant(now, lastLogin time.Time) bool {
	if lastLogin.IsZero() {
		return false
	}
	return now.Sub(lastLogin) > time.Duration(e.cfg.DormantDays)*24*time.Hour
}

// countryChanged compares country with the stored one. The first known
// country seen for an identity is recorded.
func (e *RiskEngine) countryChanged(ctx context.Context, userID, country string) bool {
	if e.countries == nil || userID == "" || country == "" || country == model.UnknownPlace {
		return false
	}

	last, ok, err := e.countries.LastCountry(ctx, userID)
	if err != nil {
		e.logger.Warn("failed to read last-seen country", zap.String("user_id", userID), zap.Error(err))
		utils.TrackError("risk", "country_cache")
		return false
	}
	if !ok {
		e.rememberCountry(ctx, userID, country)
		return false
	}
	return last != country
}

func (e *RiskEngine) rememberCountry(ctx context.Context, userID, country string) {
	if err := e.countries.SetLastCountry(ctx, userID, country); err != nil {
		e.logger.Warn("failed to record last-seen country", zap.String("user_id", userID), zap.Error(err))
		utils.TrackError("risk", "country_cache")
	}
}
