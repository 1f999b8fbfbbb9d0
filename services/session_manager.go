package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"hrsecurity/config"
	"hrsecurity/model"
	"hrsecurity/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SessionStore persists session records.
type SessionStore interface {
	CreateSession(ctx context.Context, session *model.Session) error
	// UpdateActivity raises last_activity_at to at (never lowers it) and adds
	// increment to activity_count on an active record.
	UpdateActivity(ctx context.Context, sessionID string, at time.Time, increment int64) error
	EndSession(ctx context.Context, sessionID, reason string, endedAt time.Time) error
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	ActiveForUser(ctx context.Context, userID string, now time.Time) ([]*model.Session, error)
	// ExpireStale ends every active record whose TTL elapsed before now.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type SessionManagerDeps struct {
	Config         config.SecurityConfig
	Clock          utils.Clock
	Verifier       CredentialVerifier
	Resolver       LocationResolver
	Fingerprints   *FingerprintGenerator
	TrustedDevices TrustedDeviceStore
	Risk           *RiskEngine
	Sessions       SessionStore
	Events         EventRecorder
	Logger         *zap.Logger
}

type StartOptions struct {
	// RememberDevice trusts the fingerprint unless the sign-in is high risk.
	RememberDevice bool
	// Credential is the bearer token backing the session. It is handed back
	// in Termination so its owner can release exactly that token.
	Credential string
}

// Termination describes how a session ended.
type Termination struct {
	SessionID  string
	UserID     string
	Reason     string
	At         time.Time
	Credential string
}

type termination struct {
	Termination
	context *model.SecurityContext
}

// SessionManager owns the security context of the one session running in
// this process and the monitor that keeps it honest.
type SessionManager struct {
	cfg          config.SecurityConfig
	clock        utils.Clock
	verifier     CredentialVerifier
	resolver     LocationResolver
	fingerprints *FingerprintGenerator
	devices      TrustedDeviceStore
	risk         *RiskEngine
	sessions     SessionStore
	events       EventRecorder
	logger       *zap.Logger

	// lifecycle serialises Start and Stop.
	lifecycle sync.Mutex

	mu        sync.Mutex
	state     model.SessionState
	sctx      *model.SecurityContext
	record    *model.Session
	cred      string
	health    model.HealthState
	warned    bool
	mon       *monitor
	limiter   *rate.Limiter
	callbacks map[int]func(Termination)
	nextID    int
}

func NewSessionManager(deps SessionManagerDeps) (*SessionManager, error) {
	if deps.Verifier == nil {
		return nil, errors.New("session manager requires a credential verifier")
	}
	if deps.Sessions == nil {
		return nil, errors.New("session manager requires a session store")
	}
	deps.Config = withIntervalDefaults(deps.Config)
	if deps.Clock == nil {
		deps.Clock = utils.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Resolver == nil {
		deps.Resolver = unknownResolver{}
	}
	if deps.Fingerprints == nil {
		deps.Fingerprints = NewFingerprintGenerator(deps.Clock, deps.Logger)
	}
	if deps.TrustedDevices == nil {
		deps.TrustedDevices = NewMemorySecurityStore(deps.Clock)
	}
	if deps.Risk == nil {
		deps.Risk = NewRiskEngine(deps.Config, nil, deps.Logger)
	}
	if deps.Events == nil {
		deps.Events = discardEvents{}
	}

	return &SessionManager{
		cfg:          deps.Config,
		clock:        deps.Clock,
		verifier:     deps.Verifier,
		resolver:     deps.Resolver,
		fingerprints: deps.Fingerprints,
		devices:      deps.TrustedDevices,
		risk:         deps.Risk,
		sessions:     deps.Sessions,
		events:       deps.Events,
		logger:       deps.Logger.Named("session"),
		state:        model.SessionCreated,
		health:       model.HealthCritical,
		callbacks:    make(map[int]func(Termination)),
	}, nil
}

// Start opens a session for an identity whose credential was just verified.
// A session already running in this process is ended first as superseded.
// Store failures are logged and do not fail the sign-in.
func (m *SessionManager) Start(ctx context.Context, identity *model.Identity, client model.ClientSignals, opts StartOptions) (string, error) {
	if identity == nil || identity.UserID == "" {
		return "", ErrNoIdentity
	}

	m.lifecycle.Lock()
	superseded, hadSession := m.stop(ctx, model.LogoutReasonSuperseded)
	sessionID := m.start(ctx, identity, client, opts)
	m.lifecycle.Unlock()

	if hadSession {
		m.notify(superseded)
	}
	return sessionID, nil
}

func (m *SessionManager) start(ctx context.Context, identity *model.Identity, client model.ClientSignals, opts StartOptions) string {
	now := m.clock.Now()

	fingerprint := m.fingerprints.Generate(ctx, client)
	trusted := m.isTrusted(ctx, identity.UserID, fingerprint.Hash)
	location := m.resolver.ResolveLocation(ctx, client)

	assessment := m.risk.Assess(ctx, model.RiskFactors{
		UserID:           identity.UserID,
		LoginTime:        now,
		TrustedDevice:    trusted,
		FailedAttempts:   identity.FailedAttempts,
		PreviouslyLocked: identity.PreviouslyLocked,
		LastLoginAt:      identity.LastLoginAt,
		Country:          location.Country,
		AccountActive:    identity.IsActive(),
		Privileged:       identity.IsPrivileged(),
	})

	sessionID := uuid.NewString()
	sctx := &model.SecurityContext{
		DeviceFingerprint: fingerprint,
		IPAddress:         client.IPAddress,
		Location:          location,
		RiskLevel:         assessment.Level,
		SessionID:         sessionID,
		UserID:            identity.UserID,
		UserAgent:         client.UserAgent,
		LoginTime:         now,
		LastActivity:      now,
		IsTrustedDevice:   trusted,
		SecurityFlags:     append([]string{}, assessment.Flags...),
	}

	browser, osName, device := utils.ParseUserAgent(client.UserAgent)
	record := &model.Session{
		SessionID:      sessionID,
		UserID:         identity.UserID,
		DisplayName:    utils.GenerateSessionName(client.UserAgent, location),
		DeviceInfo:     utils.DeviceInfo(client.UserAgent),
		Browser:        browser,
		OS:             osName,
		DeviceType:     device,
		Fingerprint:    fingerprint.Hash,
		IPAddress:      client.IPAddress,
		Location:       location,
		RiskLevel:      assessment.Level,
		RiskScore:      assessment.Score,
		IsActive:       true,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.cfg.SessionTTL),
		LastActivityAt: now,
	}

	persisted := *record
	storeCtx, cancel := m.storeContext(ctx)
	if err := m.sessions.CreateSession(storeCtx, &persisted); err != nil {
		m.logger.Warn("failed to persist session", zap.String("session_id", sessionID), zap.Error(err))
		utils.TrackError("session", "create")
	}
	cancel()

	m.promoteDevice(ctx, identity.UserID, fingerprint.Hash, trusted, assessment, opts)

	mon := newMonitor(m.clock, m.cfg.HealthCheckInterval, m.cfg.RiskEscalationInterval)

	m.mu.Lock()
	m.state = model.SessionActive
	m.sctx = sctx
	m.record = record
	m.cred = opts.Credential
	m.health = model.HealthHealthy
	m.warned = false
	m.limiter = rate.NewLimiter(rate.Every(m.cfg.ActivityPersistInterval), 1)
	m.mon = mon
	snapshot := sctx.Clone()
	m.mu.Unlock()

	go m.runMonitor(mon)

	m.recordEvent(model.EventSignIn, snapshot, map[string]string{
		"risk_score":     strconv.Itoa(assessment.Score),
		"security_flags": strings.Join(assessment.Flags, ","),
	})
	utils.TrackSessionStarted()

	m.logger.Info("session started",
		zap.String("session_id", sessionID),
		zap.String("user_id", identity.UserID),
		zap.String("risk_level", string(assessment.Level)),
		zap.Strings("security_flags", assessment.Flags),
		zap.Bool("trusted_device", trusted),
	)
	return sessionID
}

// Stop ends the running session with reason. When it returns both periodic
// tasks are cancelled and no further tick can run. Calling it again, or with
// no session running, does nothing.
func (m *SessionManager) Stop(ctx context.Context, reason string) {
	m.lifecycle.Lock()
	term, ok := m.stop(ctx, reason)
	m.lifecycle.Unlock()

	if ok {
		m.notify(term)
	}
}

func (m *SessionManager) stop(ctx context.Context, reason string) (termination, bool) {
	m.mu.Lock()
	if m.state != model.SessionActive {
		m.mu.Unlock()
		return termination{}, false
	}
	mon := m.mon
	term := m.finishLocked(reason)
	m.mu.Unlock()

	<-mon.done
	m.afterTermination(ctx, term)
	return term, true
}

// finishLocked moves the session to its terminal state, halts the monitor and
// drops the in-memory context. Callers hold m.mu.
func (m *SessionManager) finishLocked(reason string) termination {
	term := termination{
		Termination: Termination{
			SessionID: m.record.SessionID,
			UserID:    m.record.UserID,
			Reason:     reason,
			At:         m.clock.Now(),
			Credential: m.cred,
		},
		context: m.sctx,
	}

	if reason == model.LogoutReasonExpired {
		m.state = model.SessionExpired
	} else {
		m.state = model.SessionLoggedOut
	}
	m.health = model.HealthCritical
	m.warned = false
	m.mon.halt()
	m.mon = nil
	m.sctx = nil
	m.record = nil
	m.cred = ""
	return term
}

// afterTermination writes the outcome of a transition that already happened
// in memory. Failures here are logged only.
func (m *SessionManager) afterTermination(ctx context.Context, term termination) {
	storeCtx, cancel := m.storeContext(context.WithoutCancel(ctx))
	if err := m.sessions.EndSession(storeCtx, term.SessionID, term.Reason, term.At); err != nil {
		m.logger.Warn("failed to end session record",
			zap.String("session_id", term.SessionID),
			zap.String("reason", term.Reason),
			zap.Error(err),
		)
		utils.TrackError("session", "end")
	}
	cancel()

	m.recordEvent(terminationEvent(term.Reason), term.context, map[string]string{"reason": term.Reason})
	utils.TrackSessionEnded(term.Reason)

	m.logger.Info("session ended",
		zap.String("session_id", term.SessionID),
		zap.String("user_id", term.UserID),
		zap.String("reason", term.Reason),
	)
}

func terminationEvent(reason string) model.EventType {
	switch reason {
	case model.LogoutReasonExpired:
		return model.EventSessionExpired
	case model.LogoutReasonSuperseded:
		return model.EventSessionSuperseded
	default:
		return model.EventLogout
	}
}

func (m *SessionManager) notify(term termination) {
	m.mu.Lock()
	callbacks := make([]func(Termination), 0, len(m.callbacks))
	for _, cb := range m.callbacks {
		callbacks = append(callbacks, cb)
	}
	m.mu.Unlock()

	for _, cb := range callbacks {
		m.invoke(cb, term.Termination)
	}
}

func (m *SessionManager) invoke(cb func(Termination), t Termination) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("termination callback panicked", zap.Any("panic", r))
		}
	}()
	cb(t)
}

// OnSessionTerminated registers cb to run once for every session that ends.
// The returned function unregisters it.
func (m *SessionManager) OnSessionTerminated(cb func(Termination)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.callbacks[id] = cb
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.callbacks, id)
	}
}

// TouchActivity records user interaction. It never blocks on storage:
// persistence is handed to the monitor and throttled.
func (m *SessionManager) TouchActivity() {
	now := m.clock.Now()

	m.mu.Lock()
	if m.state != model.SessionActive {
		m.mu.Unlock()
		return
	}
	m.advanceActivityLocked(now)
	mon := m.mon
	allowed := m.limiter.AllowN(now, 1)
	m.mu.Unlock()

	if allowed {
		select {
		case mon.activity <- struct{}{}:
		default:
		}
	}
}

// advanceActivityLocked keeps last activity monotonic. Callers hold m.mu.
func (m *SessionManager) advanceActivityLocked(now time.Time) {
	if now.After(m.sctx.LastActivity) {
		m.sctx.LastActivity = now
		m.record.LastActivityAt = now
	}
}

// CurrentHealth checks the credential now: critical when it is invalid or the
// TTL has elapsed, warning when the check itself failed, healthy otherwise.
func (m *SessionManager) CurrentHealth(ctx context.Context) model.HealthState {
	m.mu.Lock()
	if m.state != model.SessionActive {
		m.mu.Unlock()
		return model.HealthCritical
	}
	mon := m.mon
	userID, expiresAt := m.record.UserID, m.record.ExpiresAt
	m.mu.Unlock()

	health := model.HealthCritical
	if !m.clock.Now().After(expiresAt) {
		health = m.checkCredential(ctx, userID)
	}
	utils.TrackHealthCheck(string(health))

	m.mu.Lock()
	if m.mon == mon {
		m.health = health
	}
	m.mu.Unlock()
	return health
}

// GetSecurityContext returns a copy of the running session's context, or nil.
func (m *SessionManager) GetSecurityContext() *model.SecurityContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sctx.Clone()
}

// GetSessionHealth returns the last observed health without checking again.
// With no running session it is critical.
func (m *SessionManager) GetSessionHealth() model.HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health
}

func (m *SessionManager) State() model.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ActiveSessions lists the identity's records that are still within their TTL.
func (m *SessionManager) ActiveSessions(ctx context.Context, userID string) ([]*model.Session, error) {
	sessions, err := m.sessions.ActiveForUser(ctx, userID, m.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return sessions, nil
}

// ExpireStale ends stored sessions left active past their TTL, e.g. by a
// process that died without logging out.
func (m *SessionManager) ExpireStale(ctx context.Context) (int64, error) {
	n, err := m.sessions.ExpireStale(ctx, m.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale sessions: %w", err)
	}
	if n > 0 {
		m.logger.Info("expired stale sessions", zap.Int64("count", n))
	}
	return n, nil
}

func (m *SessionManager) isTrusted(ctx context.Context, userID, fingerprint string) bool {
	ctx, cancel := m.storeContext(ctx)
	defer cancel()
	trusted, err := m.devices.IsTrusted(ctx, userID, fingerprint)
	if err != nil {
		m.logger.Warn("trusted device lookup failed", zap.String("user_id", userID), zap.Error(err))
		utils.TrackError("trusted_devices", "lookup")
		return false
	}
	return trusted
}

// promoteDevice remembers a fingerprint after a sign-in whose only flag, if
// any, was the unknown device itself, or on request unless the risk is high.
func (m *SessionManager) promoteDevice(ctx context.Context, userID, fingerprint string, trusted bool, a model.RiskAssessment, opts StartOptions) {
	if trusted {
		return
	}
	clean := len(a.Flags) == 0 || (len(a.Flags) == 1 && a.Flags[0] == model.FlagUntrustedDevice)
	if !clean && !(opts.RememberDevice && a.Level != model.RiskHigh) {
		return
	}

	ctx, cancel := m.storeContext(ctx)
	defer cancel()
	if err := m.devices.Remember(ctx, userID, fingerprint); err != nil {
		m.logger.Warn("failed to remember device", zap.String("user_id", userID), zap.Error(err))
		utils.TrackError("trusted_devices", "remember")
	}
}

func (m *SessionManager) recordEvent(eventType model.EventType, snapshot *model.SecurityContext, details map[string]string) {
	if snapshot == nil {
		return
	}
	m.events.Record(model.SecurityEvent{
		Type:      eventType,
		UserID:    snapshot.UserID,
		SessionID: snapshot.SessionID,
		Context:   *snapshot,
		Details:   details,
		Timestamp: m.clock.Now(),
	})
}

func (m *SessionManager) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.StoreTimeout)
}

// withIntervalDefaults fills zero durations so a partially built config
// cannot produce zero-length tickers or store timeouts.
func withIntervalDefaults(cfg config.SecurityConfig) config.SecurityConfig {
	def := config.DefaultSecurityConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = def.HealthCheckInterval
	}
	if cfg.RiskEscalationInterval <= 0 {
		cfg.RiskEscalationInterval = def.RiskEscalationInterval
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	return cfg
}

type unknownResolver struct{}

func (unknownResolver) ResolveLocation(context.Context, model.ClientSignals) model.Location {
	return model.UnknownLocation()
}

type discardEvents struct{}

func (discardEvents) Record(model.SecurityEvent) {}
