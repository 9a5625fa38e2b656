package authcore

import (
	"context"
	"sync"
	"testing"
	"time"
)

const (
	testAccessSecret  = "access-secret-for-tests-0123456789abcdef"
	testRefreshSecret = "refresh-secret-for-tests-0123456789abcdef"
	testPassword      = "Str0ng!Pass"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = testAccessSecret
	cfg.JWT.RefreshSecret = testRefreshSecret
	cfg.Password.Iterations = 1000
	cfg.Password.MaxConcurrent = 4
	return cfg
}

// newTestEngine builds an engine on in-memory stores and a controllable
// clock. configure may adjust the builder before Build.
func newTestEngine(t *testing.T, configure func(*Config, *Builder)) (*Engine, *testClock) {
	t.Helper()

	clock := newTestClock()
	cfg := testConfig()
	b := New().WithClock(clock.Now)
	if configure != nil {
		configure(&cfg, b)
	}
	engine, err := b.WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, clock
}

func mustRegister(t *testing.T, e *Engine, email string) *PublicUser {
	t.Helper()

	user, err := e.Register(context.Background(), RegisterRequest{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}

func mustLogin(t *testing.T, e *Engine, ctx context.Context, email, pw string) *LoginResult {
	t.Helper()

	res, err := e.Login(ctx, email, pw)
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return res
}

// collectEvents closes e, which flushes the audit dispatcher, and returns
// everything the sink received.
func collectEvents(e *Engine, sink *ChannelSink) []AuditEvent {
	e.Close()

	var out []AuditEvent
	for {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasEvent(events []AuditEvent, eventType string) bool {
	for _, ev := range events {
		if ev.EventType == eventType {
			return true
		}
	}
	return false
}
