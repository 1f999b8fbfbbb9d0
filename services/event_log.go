package services

import (
	"context"
	"sync"
	"time"

	"hrsecurity/model"
	"hrsecurity/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventStore persists security events. Implementations only ever insert.
type EventStore interface {
	InsertEvent(ctx context.Context, event *model.SecurityEvent) error
}

// EventRecorder is the side of the event log the session manager writes to.
type EventRecorder interface {
	Record(event model.SecurityEvent)
}

type EventLogOptions struct {
	QueueSize    int
	WriteTimeout time.Duration
	// Audit is an optional append-only file sink.
	Audit  *zap.Logger
	Logger *zap.Logger
}

// EventLog is a best-effort, append-only audit trail. Record never blocks:
// events are queued and written by a single goroutine; when the queue is
// full the event is dropped and counted.
type EventLog struct {
	store   EventStore
	audit   *zap.Logger
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan eventRequest
	done   chan struct{}
}

type eventRequest struct {
	event   *model.SecurityEvent
	flushed chan struct{}
}

func NewEventLog(store EventStore, opts EventLogOptions) *EventLog {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	l := &EventLog{
		store:   store,
		audit:   opts.Audit,
		logger:  opts.Logger,
		timeout: opts.WriteTimeout,
		queue:   make(chan eventRequest, opts.QueueSize),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Record queues event for writing. An empty EventID or Timestamp is filled in.
func (l *EventLog) Record(event model.SecurityEvent) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		utils.SecurityEventsDropped.Inc()
		return
	}

	select {
	case l.queue <- eventRequest{event: &event}:
		utils.SecurityEventsTotal.WithLabelValues(string(event.Type)).Inc()
	default:
		utils.SecurityEventsDropped.Inc()
		l.logger.Warn("security event queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("session_id", event.SessionID),
		)
	}
}

// Flush waits until every event queued before the call has been written.
func (l *EventLog) Flush(ctx context.Context) error {
	req := eventRequest{flushed: make(chan struct{})}

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return nil
	}
	select {
	case l.queue <- req:
	case <-ctx.Done():
		l.mu.RUnlock()
		return ctx.Err()
	}
	l.mu.RUnlock()

	select {
	case <-req.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the writer. It is safe to call more than once.
func (l *EventLog) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	<-l.done
	if l.audit != nil {
		_ = l.audit.Sync()
	}
	return nil
}

func (l *EventLog) run() {
	defer close(l.done)
	for req := range l.queue {
		if req.flushed != nil {
			close(req.flushed)
			continue
		}
		l.write(req.event)
	}
}

func (l *EventLog) write(event *model.SecurityEvent) {
	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		err := l.store.InsertEvent(ctx, event)
		cancel()
		if err != nil {
			l.logger.Warn("failed to persist security event",
				zap.String("event_id", event.EventID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
			utils.TrackError("event_log", "store")
		}
	}

	if l.audit != nil {
		l.audit.Info("security_event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", string(event.Type)),
			zap.String("user_id", event.UserID),
			zap.String("session_id", event.SessionID),
			zap.String("risk_level", string(event.Context.RiskLevel)),
			zap.Strings("security_flags", event.Context.SecurityFlags),
			zap.String("ip_address", event.Context.IPAddress),
			zap.String("location", event.Context.Location.String()),
			zap.String("fingerprint", event.Context.DeviceFingerprint.Hash),
			zap.Any("details", event.Details),
			zap.Time("occurred_at", event.Timestamp),
		)
	}
}
