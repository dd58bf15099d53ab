package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// Bus names used for committed events.
const (
	EventsChannel = "ch:events"
	EventsStream  = "stream:events"
)

// maxPendingEvents caps the archive buffer so a failing archive cannot grow
// memory without bound. Oldest events are dropped first.
const maxPendingEvents = 50_000

const finalFlushTimeout = 10 * time.Second

// EventNotifier forwards events to humans.
type EventNotifier interface {
	NotifyEvent(ctx context.Context, e domain.Event) error
}

// EventArchiver writes batches of events to cold storage.
type EventArchiver interface {
	ArchiveEvents(ctx context.Context, events []domain.Event) (string, error)
}

// RelayConfig collects the optional sinks of an EventRelay. Nil sinks are
// skipped.
type RelayConfig struct {
	Bus      domain.SignalBus
	Audit    domain.EventPublisher
	Cache    domain.MarketCache
	Notifier EventNotifier
	Archiver EventArchiver
}

// EventRelay implements domain.EventPublisher. It fans committed engine
// events out to the bus, the audit log, the market cache and notifiers.
// Sink failures are logged and joined into the returned error; the engine
// treats that as a warning since the state change already committed.
type EventRelay struct {
	cfg    RelayConfig
	logger *slog.Logger

	mu      sync.Mutex
	pending []domain.Event
}

// NewEventRelay creates an EventRelay.
func NewEventRelay(cfg RelayConfig, logger *slog.Logger) *EventRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventRelay{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "event_relay")),
	}
}

// Publish fans out one committed batch.
func (r *EventRelay) Publish(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	var failed int

	if r.cfg.Audit != nil {
		if err := r.cfg.Audit.Publish(ctx, events); err != nil {
			failed++
			r.warn(ctx, "audit", err)
		}
	}

	invalidated := make(map[uint64]bool)
	for _, e := range events {
		if r.cfg.Bus != nil {
			if err := r.broadcast(ctx, e); err != nil {
				failed++
				r.warn(ctx, "bus", err)
			}
		}
		if r.cfg.Cache != nil && e.MarketID != 0 && !invalidated[e.MarketID] {
			invalidated[e.MarketID] = true
			if err := r.cfg.Cache.Invalidate(ctx, e.MarketID); err != nil {
				failed++
				r.warn(ctx, "cache", err)
			}
		}
		if r.cfg.Notifier != nil {
			if err := r.cfg.Notifier.NotifyEvent(ctx, e); err != nil {
				failed++
				r.warn(ctx, "notify", err)
			}
		}
	}

	if r.cfg.Archiver != nil {
		r.mu.Lock()
		r.pending = append(r.pending, events...)
		if over := len(r.pending) - maxPendingEvents; over > 0 {
			r.pending = append(r.pending[:0:0], r.pending[over:]...)
		}
		r.mu.Unlock()
	}

	if failed > 0 {
		return fmt.Errorf("event_relay: %d sink(s) failed", failed)
	}
	return nil
}

func (r *EventRelay) broadcast(ctx context.Context, e domain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	if err := r.cfg.Bus.Publish(ctx, EventsChannel, payload); err != nil {
		return err
	}
	return r.cfg.Bus.StreamAppend(ctx, EventsStream, payload)
}

func (r *EventRelay) warn(ctx context.Context, sink string, err error) {
	r.logger.WarnContext(ctx, "event_relay: sink failed",
		slog.String("sink", sink),
		slog.String("error", err.Error()),
	)
}

// FlushArchive writes buffered events as one batch. On failure the events
// are put back for the next flush.
func (r *EventRelay) FlushArchive(ctx context.Context) (int, error) {
	if r.cfg.Archiver == nil {
		return 0, nil
	}
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}
	path, err := r.cfg.Archiver.ArchiveEvents(ctx, batch)
	if err != nil {
		r.mu.Lock()
		r.pending = append(batch, r.pending...)
		r.mu.Unlock()
		return 0, fmt.Errorf("event_relay: archive events: %w", err)
	}
	r.logger.InfoContext(ctx, "event_relay: archived events",
		slog.String("path", path),
		slog.Int("count", len(batch)),
	)
	return len(batch), nil
}

// Archiving reports whether published events are buffered for cold storage.
func (r *EventRelay) Archiving() bool { return r.cfg.Archiver != nil }

// RunFlusher flushes the archive buffer every interval until ctx is
// cancelled, then makes a last flush on a short detached context. Processes
// that run no keeper use it so their events still reach cold storage.
func (r *EventRelay) RunFlusher(ctx context.Context, interval time.Duration) error {
	if r.cfg.Archiver == nil {
		return nil
	}
	if interval <= 0 {
		interval = DefaultKeeperInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
			defer cancel()
			if _, err := r.FlushArchive(flushCtx); err != nil {
				r.warn(flushCtx, "archive", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.FlushArchive(ctx); err != nil {
				r.warn(ctx, "archive", err)
			}
		}
	}
}

// Pending returns how many events await archiving.
func (r *EventRelay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

var _ domain.EventPublisher = (*EventRelay)(nil)
