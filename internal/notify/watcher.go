package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openpredict/predictiondao/internal/domain"
)

// Event names accepted in the notify configuration. They are coarser than
// the engine's event types so operators configure categories, not payloads.
const (
	EventMarketCreated    = "market_created"
	EventMarketResolved   = "market_resolved"
	EventProposalCreated  = "proposal_created"
	EventProposalExecuted = "proposal_executed"
	EventResolverSlashed  = "resolver_slashed"
	EventError            = "error"
)

// dedupTTL is the window within which a repeated event ID is ignored. The
// relay can redeliver when a replica restarts mid-publish.
const dedupTTL = 10 * time.Minute

// Watcher subscribes to the signal bus and forwards noteworthy engine
// events to the notifier.
type Watcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewWatcher creates a Watcher over the given bus and notifier.
func NewWatcher(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Watcher {
	return &Watcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_watcher")),
		seen:     make(map[string]time.Time),
	}
}

// Run consumes the market and proposal channels until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	channels := []string{"ch:market", "ch:proposal"}
	for _, ch := range channels {
		msgCh, err := w.bus.Subscribe(ctx, ch)
		if err != nil {
			return fmt.Errorf("notify: subscribe %s: %w", ch, err)
		}
		go w.consume(ctx, ch, msgCh)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (w *Watcher) consume(ctx context.Context, channel string, msgCh <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				w.logger.Warn("subscription closed", slog.String("channel", channel))
				return
			}
			w.handle(ctx, data)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, data []byte) {
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		w.logger.Warn("undecodable event on bus", slog.String("error", err.Error()))
		return
	}
	if w.isDuplicate(ev.ID) {
		return
	}

	name, title, message := describe(ev)
	if name == "" {
		return
	}

	if err := w.notifier.Notify(ctx, name, title, message); err != nil {
		w.logger.ErrorContext(ctx, "notification failed",
			slog.String("event", name),
			slog.String("error", err.Error()),
		)
	}
}

// describe maps an engine event to a notification category, title, and
// body. Events not worth an operator alert return an empty name.
func describe(ev domain.Event) (name, title, message string) {
	marketID := uint64(0)
	if ev.MarketID != nil {
		marketID = *ev.MarketID
	}

	switch ev.Type {
	case domain.EventMarketCreated:
		return EventMarketCreated,
			"Market created",
			fmt.Sprintf("Market #%d opened at height %d.", marketID, ev.Height)

	case domain.EventMarketResolved:
		return EventMarketResolved,
			"Market resolved",
			fmt.Sprintf("Market #%d has a posted outcome; the dispute window is open.", marketID)

	case domain.EventProposalCreated:
		return EventProposalCreated,
			"Dispute opened",
			fmt.Sprintf("Market #%d is under dispute. Voting is live.", marketID)

	case domain.EventProposalExecuted:
		return EventProposalExecuted,
			"Dispute executed",
			fmt.Sprintf("The dispute on market #%d has been tallied and executed.", marketID)

	case domain.EventResolverSlashed:
		return EventResolverSlashed,
			"Resolver slashed",
			fmt.Sprintf("The resolver of market #%d lost half their bond to a successful dispute.", marketID)

	default:
		return "", "", ""
	}
}

// isDuplicate records the event ID and reports whether it was already seen
// within the TTL window. Expired entries are pruned opportunistically.
func (w *Watcher) isDuplicate(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if last, ok := w.seen[id]; ok && now.Sub(last) < dedupTTL {
		return true
	}
	w.seen[id] = now

	if len(w.seen) > 4096 {
		for k, ts := range w.seen {
			if now.Sub(ts) >= dedupTTL {
				delete(w.seen, k)
			}
		}
	}
	return false
}
