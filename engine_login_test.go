package authcore

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

func TestLoginLockoutLifecycle(t *testing.T) {
	engine, clock := newTestEngine(t, nil)
	ctx := context.Background()
	mustRegister(t, engine, "alice@x.com")

	for i := 1; i <= 5; i++ {
		_, err := engine.Login(ctx, "alice@x.com", "Wr0ng!Pass")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	_, err := engine.Login(ctx, "alice@x.com", testPassword)
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked with correct password, got %v", err)
	}
	if got := HTTPStatus(err); got != http.StatusLocked {
		t.Fatalf("expected status 423, got %d", got)
	}

	clock.Advance(30 * time.Minute)

	res := mustLogin(t, engine, ctx, "alice@x.com", testPassword)
	if res.User.FailedLoginAttempts != 0 {
		t.Fatalf("expected failure counter reset, got %d", res.User.FailedLoginAttempts)
	}
	if res.User.LockedUntil != nil {
		t.Fatalf("expected lock cleared, got %v", res.User.LockedUntil)
	}
	if res.User.LastLogin == nil || !res.User.LastLogin.Equal(clock.Now()) {
		t.Fatalf("expected lastLogin stamped at %v, got %v", clock.Now(), res.User.LastLogin)
	}
}

func TestLoginLockedJustBeforeExpiry(t *testing.T) {
	engine, clock := newTestEngine(t, func(cfg *Config, _ *Builder) {
		cfg.Security.MaxLoginAttempts = 2
		cfg.Security.LockoutDuration = time.Minute
	})
	ctx := context.Background()
	mustRegister(t, engine, "bob@x.com")

	for i := 0; i < 2; i++ {
		_, _ = engine.Login(ctx, "bob@x.com", "Wr0ng!Pass")
	}

	clock.Advance(time.Minute - time.Second)
	if _, err := engine.Login(ctx, "bob@x.com", testPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked before expiry, got %v", err)
	}

	clock.Advance(time.Second)
	mustLogin(t, engine, ctx, "bob@x.com", testPassword)
}

func TestLoginUnknownEmailLooksLikeWrongPassword(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()
	mustRegister(t, engine, "carol@x.com")

	_, unknownErr := engine.Login(ctx, "nobody@x.com", testPassword)
	_, wrongErr := engine.Login(ctx, "carol@x.com", "Wr0ng!Pass")

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("messages differ: %q vs %q", unknownErr.Error(), wrongErr.Error())
	}
}

func TestLoginIsCaseInsensitiveOnEmail(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	mustRegister(t, engine, "dave@x.com")

	res := mustLogin(t, engine, context.Background(), "  DAVE@X.com ", testPassword)
	if res.User.Email != "dave@x.com" {
		t.Fatalf("expected normalized email, got %q", res.User.Email)
	}
}

func TestLoginDeactivatedDominatesLock(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()
	user := mustRegister(t, engine, "erin@x.com")

	for i := 0; i < 5; i++ {
		_, _ = engine.Login(ctx, "erin@x.com", "Wr0ng!Pass")
	}
	if err := engine.DeactivateUser(ctx, user.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := engine.Login(ctx, "erin@x.com", testPassword)
	if !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("expected ErrAccountDeactivated, got %v", err)
	}
	if got := HTTPStatus(err); got != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", got)
	}
}

func TestLoginRecordsClientMetadata(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	user := mustRegister(t, engine, "frank@x.com")

	ctx := WithUserAgent(WithClientIP(context.Background(), "10.0.0.7"), "curl/8.0")
	res := mustLogin(t, engine, ctx, "frank@x.com", testPassword)

	sessions, err := engine.ListSessions(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	got := sessions[0]
	if got.ID != res.Tokens.SessionID || got.IPAddress != "10.0.0.7" || got.UserAgent != "curl/8.0" {
		t.Fatalf("unexpected session %+v", got)
	}
}

func TestLoginEvictsOldestSessionAtCap(t *testing.T) {
	engine, clock := newTestEngine(t, func(cfg *Config, _ *Builder) {
		cfg.Session.MaxSessionsPerUser = 2
	})
	ctx := context.Background()
	user := mustRegister(t, engine, "gina@x.com")

	first := mustLogin(t, engine, ctx, "gina@x.com", testPassword)
	clock.Advance(time.Second)
	second := mustLogin(t, engine, ctx, "gina@x.com", testPassword)
	clock.Advance(time.Second)
	third := mustLogin(t, engine, ctx, "gina@x.com", testPassword)

	sessions, err := engine.ListSessions(ctx, user.ID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != second.Tokens.SessionID || sessions[1].ID != third.Tokens.SessionID {
		t.Fatalf("expected the first session evicted, got %+v", sessions)
	}
	if _, err := engine.ValidateSession(ctx, first.Tokens.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected evicted session to be gone, got %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricSessionEvicted] != 1 {
		t.Fatalf("expected 1 eviction, got %d", snap.Counters[MetricSessionEvicted])
	}
	if snap.Counters[MetricLoginSuccess] != 3 {
		t.Fatalf("expected 3 logins, got %d", snap.Counters[MetricLoginSuccess])
	}
}

func TestLoginReportsSuspiciousSessions(t *testing.T) {
	sink := NewChannelSink(256)
	engine, clock := newTestEngine(t, func(_ *Config, b *Builder) {
		b.WithAuditSink(sink)
	})
	user := mustRegister(t, engine, "hank@x.com")

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"} {
		mustLogin(t, engine, WithClientIP(context.Background(), ip), "hank@x.com", testPassword)
		clock.Advance(time.Second)
	}

	flagged, err := engine.SuspiciousSessions(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("suspicious sessions: %v", err)
	}
	if len(flagged) != 4 {
		t.Fatalf("expected 4 flagged sessions, got %d", len(flagged))
	}

	events := collectEvents(engine, sink)
	if !hasEvent(events, auditEventSuspiciousSessions) {
		t.Fatalf("expected %s audit event", auditEventSuspiciousSessions)
	}
}

func TestLoginAuditTrail(t *testing.T) {
	sink := NewChannelSink(256)
	engine, _ := newTestEngine(t, func(cfg *Config, b *Builder) {
		cfg.Security.MaxLoginAttempts = 1
		b.WithAuditSink(sink)
	})
	mustRegister(t, engine, "ivy@x.com")

	_, _ = engine.Login(WithClientIP(context.Background(), "192.0.2.1"), "ivy@x.com", "Wr0ng!Pass")

	events := collectEvents(engine, sink)
	if !hasEvent(events, auditEventLoginFailure) || !hasEvent(events, auditEventAccountLocked) {
		t.Fatalf("expected login_failure and account_locked, got %+v", events)
	}
	for _, ev := range events {
		if ev.EventType == auditEventLoginFailure {
			if ev.IP != "192.0.2.1" || ev.Error != string(auditErrInvalidCredentials) {
				t.Fatalf("unexpected failure event %+v", ev)
			}
		}
		for k, v := range ev.Metadata {
			if v == "Wr0ng!Pass" || v == testPassword {
				t.Fatalf("password leaked into audit metadata %q", k)
			}
		}
	}
}

func TestLoginLockoutUnderConcurrency(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()
	user := mustRegister(t, engine, "swarm@x.com")

	const workers = 20
	start := make(chan struct{})
	results := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := engine.Login(ctx, "swarm@x.com", "Wr0ng!Pass")
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	invalid, locked := 0, 0
	for err := range results {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			invalid++
		case errors.Is(err, ErrAccountLocked):
			locked++
		default:
			t.Fatalf("unexpected login error: %v", err)
		}
	}
	if invalid != 5 || locked != workers-5 {
		t.Fatalf("expected 5 invalid and %d locked, got %d and %d", workers-5, invalid, locked)
	}

	got, err := engine.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.LockedUntil == nil || got.FailedLoginAttempts != 0 {
		t.Fatalf("expected a lock with a reset counter, got %+v", got)
	}
}
