package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	attempts     []time.Time
	blockedUntil time.Time
}

// MemoryLimiter is an in-process Limiter.
type MemoryLimiter struct {
	config Config
	now    func() time.Time

	mu   sync.Mutex
	keys map[string]*window
}

// NewMemoryLimiter validates cfg. now may be nil.
func NewMemoryLimiter(cfg Config, now func() time.Time) (*MemoryLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{config: cfg, now: now, keys: make(map[string]*window)}, nil
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.keys[key]
	if !ok {
		w = &window{}
		l.keys[key] = w
	}

	if now.Before(w.blockedUntil) {
		return Decision{RetryAfter: w.blockedUntil.Sub(now)}, nil
	}

	cutoff := now.Add(-l.config.Window)
	kept := w.attempts[:0]
	for _, at := range w.attempts {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	w.attempts = kept

	if len(w.attempts) >= l.config.MaxAttempts {
		w.blockedUntil = now.Add(l.config.BlockDuration)
		w.attempts = nil
		return Decision{RetryAfter: l.config.BlockDuration}, nil
	}

	w.attempts = append(w.attempts, now)
	return Decision{Allowed: true, Remaining: l.config.MaxAttempts - len(w.attempts)}, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.keys, key)
	l.mu.Unlock()
	return nil
}

// Prune drops keys with no attempts in the window and no active block.
func (l *MemoryLimiter) Prune() int {
	now := l.now()
	cutoff := now.Add(-l.config.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, w := range l.keys {
		if now.Before(w.blockedUntil) {
			continue
		}
		if len(w.attempts) > 0 && w.attempts[len(w.attempts)-1].After(cutoff) {
			continue
		}
		delete(l.keys, key)
		n++
	}
	return n
}
