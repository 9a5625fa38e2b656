package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSweeperRunOnceRemovesExpired(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestManager(t, NewMemoryStore(), Config{SessionTimeout: time.Minute})
	if _, err := m.CreateSession(ctx, "u-1", "rt", Metadata{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	clock.Advance(2 * time.Minute)

	s := NewSweeper(m, time.Minute, zerolog.Nop())
	s.RunOnce()

	all, err := m.store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected sweep to remove expired session, %d left", len(all))
	}
}

func TestSweeperStartStop(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore(), Config{})
	s := NewSweeper(m, 0, zerolog.Nop())
	if s.interval != DefaultCleanupInterval {
		t.Fatalf("expected default interval, got %v", s.interval)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Fatal("expected start after stop to fail")
	}
}
