package authcore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/store/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestResetPasswordDoesNotRevealExistence(t *testing.T) {
	engine, clock := newTestEngine(t, nil)
	ctx := context.Background()
	mustRegister(t, engine, "alice@x.com")

	known, err := engine.ResetPassword(ctx, "alice@x.com")
	if err != nil {
		t.Fatalf("reset known: %v", err)
	}
	unknown, err := engine.ResetPassword(ctx, "nobody@x.com")
	if err != nil {
		t.Fatalf("reset unknown: %v", err)
	}

	if known.Message != ResetRequestMessage || unknown.Message != ResetRequestMessage {
		t.Fatalf("unexpected messages %q / %q", known.Message, unknown.Message)
	}
	if known.Token == "" || unknown.Token != "" {
		t.Fatalf("expected a token only for the known email")
	}
	if want := clock.Now().Add(time.Hour); !known.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, known.ExpiresAt)
	}

	a, _ := json.Marshal(known)
	b, _ := json.Marshal(unknown)
	if string(a) != string(b) {
		t.Fatalf("serialized responses differ: %s vs %s", a, b)
	}
	if strings.Contains(string(a), known.Token) {
		t.Fatal("raw token serialized")
	}
}

func TestCompletePasswordReset(t *testing.T) {
	engine, clock := newTestEngine(t, nil)
	ctx := context.Background()
	user := mustRegister(t, engine, "bob@x.com")
	mustLogin(t, engine, ctx, "bob@x.com", testPassword)

	for i := 0; i < 5; i++ {
		_, _ = engine.Login(ctx, "bob@x.com", "Wr0ng!Pass")
	}

	req, err := engine.ResetPassword(ctx, "bob@x.com")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	clock.Advance(time.Minute)

	if err := engine.CompletePasswordReset(ctx, req.Token, "N3w!Secret"); err != nil {
		t.Fatalf("complete reset: %v", err)
	}

	sessions, _ := engine.ListSessions(ctx, user.ID)
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}

	res := mustLogin(t, engine, ctx, "bob@x.com", "N3w!Secret")
	if res.User.FailedLoginAttempts != 0 {
		t.Fatalf("expected counter cleared, got %d", res.User.FailedLoginAttempts)
	}

	err = engine.CompletePasswordReset(ctx, req.Token, "An0ther!Secret")
	if !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected ErrInvalidResetToken on reuse, got %v", err)
	}
	if got := HTTPStatus(err); got != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", got)
	}
}

func TestCompletePasswordResetCancelledKeepsToken(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()
	mustRegister(t, engine, "fred@x.com")

	req, err := engine.ResetPassword(ctx, "fred@x.com")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = engine.CompletePasswordReset(cancelled, req.Token, "N3w!Secret")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in the chain, got %v", err)
	}
	if errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("cancelled completion must not look like a bad token: %v", err)
	}

	if err := engine.CompletePasswordReset(ctx, req.Token, "N3w!Secret"); err != nil {
		t.Fatalf("retry with the same token: %v", err)
	}
	mustLogin(t, engine, ctx, "fred@x.com", "N3w!Secret")
}

func TestCompletePasswordResetRejections(t *testing.T) {
	engine, clock := newTestEngine(t, nil)
	ctx := context.Background()
	mustRegister(t, engine, "carol@x.com")

	req, err := engine.ResetPassword(ctx, "carol@x.com")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}

	if err := engine.CompletePasswordReset(ctx, "deadbeef", "N3w!Secret"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected ErrInvalidResetToken for unknown token, got %v", err)
	}

	err = engine.CompletePasswordReset(ctx, req.Token, "weak")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	clock.Advance(time.Hour)
	if err := engine.CompletePasswordReset(ctx, req.Token, "N3w!Secret"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected ErrInvalidResetToken after expiry, got %v", err)
	}
}

func TestResetPasswordSkipsDeactivatedUser(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()
	user := mustRegister(t, engine, "dave@x.com")
	if err := engine.DeactivateUser(ctx, user.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	res, err := engine.ResetPassword(ctx, "dave@x.com")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if res.Token != "" || res.Message != ResetRequestMessage {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestPasswordResetOnRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	engine, _ := newTestEngine(t, func(_ *Config, b *Builder) {
		b.WithRedis(client)
	})
	if _, ok := engine.resetTokens.(*redisstore.ResetTokenStore); !ok {
		t.Fatalf("expected redis reset store, got %T", engine.resetTokens)
	}

	ctx := context.Background()
	user := mustRegister(t, engine, "erin@x.com")
	mustLogin(t, engine, ctx, "erin@x.com", testPassword)

	req, err := engine.ResetPassword(ctx, "erin@x.com")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := engine.CompletePasswordReset(ctx, req.Token, "N3w!Secret"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := engine.CompletePasswordReset(ctx, req.Token, "N3w!Secret2"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected ErrInvalidResetToken on reuse, got %v", err)
	}

	sessions, err := engine.ListSessions(ctx, user.ID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}
