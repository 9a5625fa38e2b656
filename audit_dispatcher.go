package authcore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// auditDispatcher hands audit events to the sink on one background worker.
// With DropIfFull a full buffer drops the event; otherwise Emit waits for
// room until ctx ends. Both ways of losing an event count as a drop and are
// logged on the first occurrence and then at every power of two.
type auditDispatcher struct {
	cfg       AuditConfig
	sink      AuditSink
	log       zerolog.Logger
	queue     chan AuditEvent
	stop      chan struct{}
	worker    sync.WaitGroup
	dropped   atomic.Uint64
	delivered atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, log zerolog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		cfg:   cfg,
		sink:  sink,
		log:   log.With().Str("subsystem", "audit").Logger(),
		queue: make(chan AuditEvent, cfg.BufferSize),
		stop:  make(chan struct{}),
	}
	d.worker.Add(1)
	go d.loop()
	return d
}

func (d *auditDispatcher) loop() {
	defer d.worker.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver shields the worker from a panicking sink.
func (d *auditDispatcher) deliver(event AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Interface("panic", r).
				Str("event_type", event.EventType).
				Msg("audit sink panicked")
		}
	}()
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

func (d *auditDispatcher) drop(event AuditEvent, reason string) {
	n := d.dropped.Add(1)
	if n&(n-1) != 0 {
		return
	}
	d.log.Warn().
		Str("event_type", event.EventType).
		Str("reason", reason).
		Uint64("dropped_total", n).
		Msg("audit event dropped")
}

func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.drop(event, "buffer_full")
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event, "context_done")
	case <-d.stop:
	}
}

// Close stops intake, flushes what is queued and logs the final tally.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.worker.Wait()
		d.log.Debug().
			Uint64("delivered", d.delivered.Load()).
			Uint64("dropped", d.dropped.Load()).
			Msg("audit dispatcher closed")
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
