package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultCleanupInterval is the sweep period used when none is configured.
const DefaultCleanupInterval = 15 * time.Minute

// Sweeper runs CleanupExpiredSessions on a cron schedule.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	log      zerolog.Logger

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// NewSweeper creates a sweeper for m. A non-positive interval means
// DefaultCleanupInterval.
func NewSweeper(m *Manager, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		manager:  m,
		interval: interval,
		log:      log,
		cron:     cron.New(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start schedules the sweep. Calling Start twice is a no-op.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.ctx.Err() != nil {
		return errors.New("sweeper already stopped")
	}
	if _, err := s.cron.AddFunc("@every "+s.interval.String(), s.RunOnce); err != nil {
		return err
	}
	s.cron.Start()
	s.started = true
	s.log.Info().Dur("interval", s.interval).Msg("session sweeper started")
	return nil
}

// RunOnce performs a single sweep under the sweeper's lifetime context.
func (s *Sweeper) RunOnce() {
	start := time.Now()
	removed, err := s.manager.CleanupExpiredSessions(s.ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.log.Error().Err(err).Int("removed", removed).Msg("session sweep failed")
		return
	}
	s.log.Debug().Int("removed", removed).Dur("took", time.Since(start)).Msg("session sweep finished")
}

// Stop cancels an in-flight sweep, stops the schedule and waits for the
// running job to return or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return nil
	}

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info().Msg("session sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
