package testutils

import (
	"context"
	"sync"
	"testing"
	"time"

	"hrsecurity/model"
	"hrsecurity/utils"
)

// ManualClock implements utils.Clock with time that only moves when a test
// calls Advance or Set.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) NewTicker(d time.Duration) utils.Ticker {
	if d <= 0 {
		panic("non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{
		clock:  c,
		period: d,
		next:   c.now.Add(d),
		ch:     make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the clock forward and fires every ticker whose deadline has
// passed. Like time.Ticker, a ticker whose channel is still full drops ticks.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.tickers {
		for !t.next.After(c.now) {
			select {
			case t.ch <- t.next:
			default:
			}
			t.next = t.next.Add(t.period)
		}
	}
}

// Set jumps to an absolute time without firing tickers.
func (c *ManualClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	for _, t := range c.tickers {
		t.next = now.Add(t.period)
	}
}

// ActiveTickers returns how many tickers have not been stopped.
func (c *ManualClock) ActiveTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

type manualTicker struct {
	clock  *ManualClock
	period time.Duration
	next   time.Time
	ch     chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, other := range c.tickers {
		if other == t {
			c.tickers = append(c.tickers[:i], c.tickers[i+1:]...)
			return
		}
	}
}

// WaitFor polls cond until it holds or the deadline passes.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// Never asserts cond stays false for a short settle period.
func Never(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		if cond() {
			t.Fatalf("unexpected: %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// StubVerifier answers credential checks with whatever the test set last.
type StubVerifier struct {
	mu       sync.Mutex
	identity *model.Identity
	err      error
	calls    int
}

func NewStubVerifier(identity *model.Identity) *StubVerifier {
	return &StubVerifier{identity: identity}
}

func (v *StubVerifier) VerifyCurrentCredential(context.Context) (*model.Identity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return v.identity, nil
}

// Fail makes every following check return err; nil restores success.
func (v *StubVerifier) Fail(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = err
}

func (v *StubVerifier) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

// StaticResolver always resolves to the same location.
type StaticResolver struct {
	Location model.Location
}

func (r StaticResolver) ResolveLocation(context.Context, model.ClientSignals) model.Location {
	return r.Location
}

// EventCollector records security events synchronously.
type EventCollector struct {
	mu     sync.Mutex
	events []model.SecurityEvent
}

func (c *EventCollector) Record(event model.SecurityEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *EventCollector) InsertEvent(_ context.Context, event *model.SecurityEvent) error {
	c.Record(*event)
	return nil
}

func (c *EventCollector) Events() []model.SecurityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.SecurityEvent(nil), c.events...)
}

// Count returns how many events of type t were recorded.
func (c *EventCollector) Count(t model.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
