// Package service coordinates the in-memory engine with the persistence,
// cache, and messaging layers. Services are the only callers of the engine
// in server mode; handlers never touch the engine directly.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/openpredict/predictiondao/internal/domain"
)

// Channel names the relay publishes on. External consumers and the
// WebSocket hub subscribe to the same names.
const (
	ChannelMarket   = "ch:market"
	ChannelProposal = "ch:proposal"
	ChannelToken    = "ch:token"

	eventStream = "events"
)

// StreamAppender appends durable copies of events to a stream, so consumers
// that were offline can catch up. The redis SignalBus satisfies it.
type StreamAppender interface {
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// EventRelay implements domain.EventSink. The engine emits events while
// holding its own mutex, so the relay never does I/O inline: Emit enqueues
// and a background pump persists and publishes.
type EventRelay struct {
	events domain.EventStore
	bus    domain.SignalBus
	stream StreamAppender
	logger *slog.Logger

	ch chan domain.Event
}

// NewEventRelay creates a relay. Any of events, bus, or stream may be nil;
// the corresponding fan-out step is skipped.
func NewEventRelay(events domain.EventStore, bus domain.SignalBus, stream StreamAppender, logger *slog.Logger) *EventRelay {
	return &EventRelay{
		events: events,
		bus:    bus,
		stream: stream,
		logger: logger,
		ch:     make(chan domain.Event, 256),
	}
}

// Emit enqueues an event for fan-out. If the queue is full the event is
// dropped from the relay (never from the engine's own state) and a warning
// is logged.
func (r *EventRelay) Emit(ev domain.Event) {
	select {
	case r.ch <- ev:
	default:
		r.logger.Warn("relay: queue full, dropping event",
			slog.String("type", string(ev.Type)),
			slog.String("id", ev.ID),
		)
	}
}

// Run pumps queued events until ctx is cancelled. Call it in its own
// goroutine before the engine starts taking calls.
func (r *EventRelay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.ch:
			r.fanOut(ctx, ev)
		}
	}
}

func (r *EventRelay) fanOut(ctx context.Context, ev domain.Event) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if r.events != nil {
		if err := r.events.Insert(ctx, ev); err != nil {
			r.logger.ErrorContext(ctx, "relay: event insert failed",
				slog.String("type", string(ev.Type)),
				slog.String("id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.ErrorContext(ctx, "relay: event marshal failed",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	if r.bus != nil {
		if err := r.bus.Publish(ctx, ChannelFor(ev.Type), payload); err != nil {
			r.logger.WarnContext(ctx, "relay: publish failed",
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}

	if r.stream != nil {
		if err := r.stream.StreamAppend(ctx, eventStream, payload); err != nil {
			r.logger.WarnContext(ctx, "relay: stream append failed",
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ChannelFor maps an event type to the pub/sub channel it is published on.
func ChannelFor(typ domain.EventType) string {
	switch typ {
	case domain.EventProposalCreated, domain.EventVoted, domain.EventProposalExecuted:
		return ChannelProposal
	case domain.EventTokensPurchased, domain.EventTokensSold,
		domain.EventRateUpdated, domain.EventFeesUpdated, domain.EventLimitsUpdated,
		domain.EventFeeRecipientUpdated, domain.EventEtherWithdrawn, domain.EventTokensWithdrawn:
		return ChannelToken
	default:
		return ChannelMarket
	}
}
