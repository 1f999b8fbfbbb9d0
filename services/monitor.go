package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"hrsecurity/model"
	"hrsecurity/utils"

	"go.uber.org/zap"
)

// monitor owns the two periodic tasks of one active session. It is halted
// exactly once, either by Stop or by the monitor expiring its own session.
type monitor struct {
	ctx      context.Context
	cancel   context.CancelFunc
	health   utils.Ticker
	risk     utils.Ticker
	activity chan struct{}
	stop     chan struct{}
	done     chan struct{}
	haltOnce sync.Once
}

func newMonitor(clock utils.Clock, healthEvery, riskEvery time.Duration) *monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &monitor{
		ctx:      ctx,
		cancel:   cancel,
		health:   clock.NewTicker(healthEvery),
		risk:     clock.NewTicker(riskEvery),
		activity: make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// halt cancels both tickers and any in-flight check. It does not wait.
func (mon *monitor) halt() {
	mon.haltOnce.Do(func() {
		mon.cancel()
		mon.health.Stop()
		mon.risk.Stop()
		close(mon.stop)
	})
}

func (m *SessionManager) runMonitor(mon *monitor) {
	defer close(mon.done)
	for {
		select {
		case <-mon.stop:
			return
		case <-mon.health.C():
			if m.healthTick(mon) {
				return
			}
		case <-mon.risk.C():
			m.riskTick(mon)
		case <-mon.activity:
			m.persistActivity(mon)
		}
	}
}

// healthTick re-validates the credential. It reports true once the monitor
// has nothing left to do.
func (m *SessionManager) healthTick(mon *monitor) bool {
	now := m.clock.Now()

	m.mu.Lock()
	if m.mon != mon {
		m.mu.Unlock()
		return true
	}
	expired := now.After(m.record.ExpiresAt)
	userID := m.record.UserID
	m.mu.Unlock()

	health := model.HealthCritical
	if !expired {
		health = m.checkCredential(mon.ctx, userID)
	}
	utils.TrackHealthCheck(string(health))

	m.mu.Lock()
	if m.mon != mon {
		m.mu.Unlock()
		return true
	}

	switch health {
	case model.HealthCritical:
		term := m.finishLocked(model.LogoutReasonExpired)
		m.mu.Unlock()
		m.logger.Info("session expired by monitor",
			zap.String("session_id", term.SessionID),
			zap.Bool("ttl_elapsed", expired),
		)
		m.afterTermination(context.Background(), term)
		m.notify(term)
		return true

	case model.HealthWarning:
		m.health = model.HealthWarning
		first := !m.warned
		m.warned = true
		snapshot := m.sctx.Clone()
		m.mu.Unlock()
		if first {
			m.recordEvent(model.EventHealthWarning, snapshot, nil)
		}
		return false

	default:
		m.health = model.HealthHealthy
		m.warned = false
		m.advanceActivityLocked(now)
		m.record.ActivityCount++
		sessionID, last := m.record.SessionID, m.record.LastActivityAt
		m.mu.Unlock()
		m.writeActivity(mon.ctx, sessionID, last, 1)
		return false
	}
}

func (m *SessionManager) riskTick(mon *monitor) {
	m.mu.Lock()
	if m.mon != mon || m.sctx.RiskLevel != model.RiskHigh {
		m.mu.Unlock()
		return
	}
	snapshot := m.sctx.Clone()
	m.mu.Unlock()

	m.recordEvent(model.EventHighRiskAlert, snapshot, map[string]string{
		"security_flags": strings.Join(snapshot.SecurityFlags, ","),
	})
}

func (m *SessionManager) persistActivity(mon *monitor) {
	m.mu.Lock()
	if m.mon != mon {
		m.mu.Unlock()
		return
	}
	sessionID, last := m.record.SessionID, m.record.LastActivityAt
	m.mu.Unlock()

	m.writeActivity(mon.ctx, sessionID, last, 0)
}

func (m *SessionManager) writeActivity(ctx context.Context, sessionID string, at time.Time, increment int64) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()
	if err := m.sessions.UpdateActivity(ctx, sessionID, at, increment); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("failed to persist session activity", zap.String("session_id", sessionID), zap.Error(err))
		utils.TrackError("session", "update_activity")
	}
}

// checkCredential maps the verifier result to a health state: an invalid
// credential or one for another identity is critical, any other failure is
// transient.
func (m *SessionManager) checkCredential(ctx context.Context, userID string) model.HealthState {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	identity, err := m.verifier.VerifyCurrentCredential(ctx)
	switch {
	case errors.Is(err, ErrCredentialInvalid):
		return model.HealthCritical
	case err != nil:
		if !errors.Is(err, context.Canceled) {
			m.logger.Warn("credential check failed", zap.String("user_id", userID), zap.Error(err))
		}
		return model.HealthWarning
	case identity == nil || identity.UserID != userID:
		return model.HealthCritical
	}
	return model.HealthHealthy
}
