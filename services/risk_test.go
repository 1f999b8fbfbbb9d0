package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"hrsecurity/config"
	"hrsecurity/model"
)

func testSecurityConfig() config.SecurityConfig {
	cfg := config.DefaultSecurityConfig()
	cfg.RiskTimezone = "UTC"
	return cfg
}

// calmFactors trigger nothing: business hours, trusted device, active
// non-privileged account that signed in yesterday.
func calmFactors() model.RiskFactors {
	login := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	return model.RiskFactors{
		UserID:        "u1",
		LoginTime:     login,
		TrustedDevice: true,
		LastLoginAt:   login.Add(-24 * time.Hour),
		Country:       "DE",
		AccountActive: true,
	}
}

func TestAssessFactors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.RiskFactors)
		flags  []string
		level  model.RiskLevel
	}{
		{"none", func(*model.RiskFactors) {}, nil, model.RiskLow},
		{"early morning", func(f *model.RiskFactors) { f.LoginTime = f.LoginTime.Add(-7 * time.Hour) }, []string{model.FlagUnusualHour}, model.RiskMedium},
		{"window end is exclusive", func(f *model.RiskFactors) { f.LoginTime = f.LoginTime.Add(12 * time.Hour) }, []string{model.FlagUnusualHour}, model.RiskMedium},
		{"window start is inclusive", func(f *model.RiskFactors) { f.LoginTime = f.LoginTime.Add(-4 * time.Hour) }, nil, model.RiskLow},
		{"untrusted", func(f *model.RiskFactors) { f.TrustedDevice = false }, []string{model.FlagUntrustedDevice}, model.RiskMedium},
		{"three failures is fine", func(f *model.RiskFactors) { f.FailedAttempts = 3 }, nil, model.RiskLow},
		{"four failures", func(f *model.RiskFactors) { f.FailedAttempts = 4 }, []string{model.FlagFailedAttempts}, model.RiskMedium},
		{"locked before", func(f *model.RiskFactors) { f.PreviouslyLocked = true }, []string{model.FlagPreviouslyLocked}, model.RiskMedium},
		{"dormant", func(f *model.RiskFactors) { f.LastLoginAt = f.LoginTime.Add(-31 * 24 * time.Hour) }, []string{model.FlagDormantAccount}, model.RiskMedium},
		{"first login is not dormant", func(f *model.RiskFactors) { f.LastLoginAt = time.Time{} }, nil, model.RiskLow},
		{"inactive account", func(f *model.RiskFactors) { f.AccountActive = false }, []string{model.FlagInactiveAccount}, model.RiskMedium},
		{"privileged", func(f *model.RiskFactors) { f.Privileged = true }, []string{model.FlagPrivilegedRole}, model.RiskMedium},
		{"two factors", func(f *model.RiskFactors) {
			f.TrustedDevice = false
			f.Privileged = true
		}, []string{model.FlagUntrustedDevice, model.FlagPrivilegedRole}, model.RiskMedium},
		{"night login from new device after failures", func(f *model.RiskFactors) {
			f.LoginTime = time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
			f.TrustedDevice = false
			f.FailedAttempts = 4
		}, []string{model.FlagUnusualHour, model.FlagUntrustedDevice, model.FlagFailedAttempts}, model.RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewRiskEngine(testSecurityConfig(), NewMemorySecurityStore(nil), nil)
			f := calmFactors()
			tt.mutate(&f)

			got := engine.Assess(context.Background(), f)
			if !reflect.DeepEqual(got.Flags, tt.flags) {
				t.Errorf("flags = %v, want %v", got.Flags, tt.flags)
			}
			if got.Level != tt.level {
				t.Errorf("level = %s, want %s", got.Level, tt.level)
			}
			if got.Score != tt.level.Score() {
				t.Errorf("score = %d, want %d", got.Score, tt.level.Score())
			}
		})
	}
}

func TestAssessIsMonotonic(t *testing.T) {
	triggers := []func(*model.RiskFactors){
		func(f *model.RiskFactors) { f.LoginTime = time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC) },
		func(f *model.RiskFactors) { f.TrustedDevice = false },
		func(f *model.RiskFactors) { f.FailedAttempts = 10 },
		func(f *model.RiskFactors) { f.PreviouslyLocked = true },
		func(f *model.RiskFactors) { f.LastLoginAt = f.LoginTime.AddDate(0, -3, 0) },
		func(f *model.RiskFactors) { f.AccountActive = false },
		func(f *model.RiskFactors) { f.Privileged = true },
	}
	engine := NewRiskEngine(testSecurityConfig(), nil, nil)
	ctx := context.Background()

	for mask := 0; mask < 1<<len(triggers); mask++ {
		base := calmFactors()
		for i, trig := range triggers {
			if mask&(1<<i) != 0 {
				trig(&base)
			}
		}
		before := engine.Assess(ctx, base)

		for i, trig := range triggers {
			if mask&(1<<i) != 0 {
				continue
			}
			more := base
			trig(&more)
			after := engine.Assess(ctx, more)
			if !after.Level.AtLeast(before.Level) {
				t.Fatalf("mask %b + factor %d: %s dropped to %s", mask, i, before.Level, after.Level)
			}
		}
	}
}

func TestClassifyThresholds(t *testing.T) {
	engine := NewRiskEngine(testSecurityConfig(), nil, nil)
	want := []model.RiskLevel{model.RiskLow, model.RiskMedium, model.RiskMedium, model.RiskHigh, model.RiskHigh, model.RiskHigh}
	for n, level := range want {
		if got := engine.Classify(n); got != level {
			t.Errorf("Classify(%d) = %s, want %s", n, got, level)
		}
	}
}

func TestLocationChange(t *testing.T) {
	ctx := context.Background()
	cache := NewMemorySecurityStore(nil)
	engine := NewRiskEngine(testSecurityConfig(), cache, nil)

	f := calmFactors()
	f.Country = "Unknown"
	if got := engine.Assess(ctx, f); len(got.Flags) != 0 {
		t.Fatalf("unknown country flagged: %v", got.Flags)
	}
	if _, ok, _ := cache.LastCountry(ctx, "u1"); ok {
		t.Fatal("unknown country must not be stored")
	}

	f.Country = "DE"
	if got := engine.Assess(ctx, f); len(got.Flags) != 0 {
		t.Fatalf("first-seen country flagged: %v", got.Flags)
	}

	f.Country = "FR"
	got := engine.Assess(ctx, f)
	if !reflect.DeepEqual(got.Flags, []string{model.FlagLocationChange}) {
		t.Fatalf("flags = %v, want location_change", got.Flags)
	}
	if c, _, _ := cache.LastCountry(ctx, "u1"); c != "FR" {
		t.Errorf("stored country = %q, want FR after a medium-risk sign-in", c)
	}
	if got := engine.Assess(ctx, f); len(got.Flags) != 0 {
		t.Errorf("second sign-in from FR flagged: %v", got.Flags)
	}
}

func TestHighRiskSignInKeepsCountry(t *testing.T) {
	ctx := context.Background()
	cache := NewMemorySecurityStore(nil)
	engine := NewRiskEngine(testSecurityConfig(), cache, nil)

	f := calmFactors()
	engine.Assess(ctx, f)

	f.Country = "US"
	f.TrustedDevice = false
	f.FailedAttempts = 4
	got := engine.Assess(ctx, f)
	if got.Level != model.RiskHigh {
		t.Fatalf("level = %s (flags %v), want high", got.Level, got.Flags)
	}
	if c, _, _ := cache.LastCountry(ctx, "u1"); c != "DE" {
		t.Errorf("stored country = %q, want DE kept after a high-risk sign-in", c)
	}

	f = calmFactors()
	f.Country = "US"
	if got := engine.Assess(ctx, f); !reflect.DeepEqual(got.Flags, []string{model.FlagLocationChange}) {
		t.Errorf("flags = %v, want location_change against the kept country", got.Flags)
	}
}

type brokenCountryCache struct{}

func (brokenCountryCache) LastCountry(context.Context, string) (string, bool, error) {
	return "", false, errors.New("redis down")
}
func (brokenCountryCache) SetLastCountry(context.Context, string, string) error {
	return errors.New("redis down")
}

func TestCountryCacheFailureDoesNotFlag(t *testing.T) {
	engine := NewRiskEngine(testSecurityConfig(), brokenCountryCache{}, nil)
	if got := engine.Assess(context.Background(), calmFactors()); got.Level != model.RiskLow {
		t.Errorf("level = %s, want low when the cache is unreachable", got.Level)
	}
}

func TestNormalHoursUseRiskTimezone(t *testing.T) {
	cfg := testSecurityConfig()
	cfg.RiskTimezone = "Asia/Tokyo"
	engine := NewRiskEngine(cfg, nil, nil)

	f := calmFactors()
	// 10:00 UTC is 19:00 in Tokyo; 15:00 UTC is midnight there
	if got := engine.Assess(context.Background(), f); got.Level != model.RiskLow {
		t.Errorf("10:00 UTC level = %s, want low", got.Level)
	}
	f.LoginTime = f.LoginTime.Add(5 * time.Hour)
	if got := engine.Assess(context.Background(), f); !reflect.DeepEqual(got.Flags, []string{model.FlagUnusualHour}) {
		t.Errorf("15:00 UTC flags = %v, want unusual_hour", got.Flags)
	}
}
