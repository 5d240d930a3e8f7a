package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/openpredict/predictiondao/internal/domain"
)

type fakeSender struct {
	sent []string
	fail bool
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	if f.fail {
		return context.DeadlineExceeded
	}
	f.sent = append(f.sent, title)
	return nil
}

func (f *fakeSender) Name() string { return "fake" }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &fakeSender{}
	n := NewNotifier([]Sender{s}, []string{EventMarketResolved}, discard())

	if err := n.Notify(context.Background(), EventProposalCreated, "skip", ""); err != nil {
		t.Fatalf("filtered notify errored: %v", err)
	}
	if err := n.Notify(context.Background(), EventMarketResolved, "deliver", ""); err != nil {
		t.Fatalf("allowed notify errored: %v", err)
	}

	if len(s.sent) != 1 || s.sent[0] != "deliver" {
		t.Fatalf("sent = %v, want only the allowed event", s.sent)
	}
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	good := &fakeSender{}
	bad := &fakeSender{fail: true}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.NotifyAll(context.Background(), "title", "body")
	if err == nil {
		t.Fatal("expected combined error from failing sender")
	}
	if len(good.sent) != 1 {
		t.Fatal("healthy sender should still deliver")
	}
}

func TestDescribe(t *testing.T) {
	mid := uint64(7)
	name, title, _ := describe(domain.Event{Type: domain.EventMarketResolved, MarketID: &mid})
	if name != EventMarketResolved || title == "" {
		t.Fatalf("describe resolved: name %q title %q", name, title)
	}

	// Chatty per-bet events are not operator alerts.
	name, _, _ = describe(domain.Event{Type: domain.EventPlaceBet, MarketID: &mid})
	if name != "" {
		t.Fatalf("PlaceBet should not notify, got %q", name)
	}
}

func TestWatcherDedup(t *testing.T) {
	w := NewWatcher(nil, NewNotifier(nil, nil, discard()), discard())

	if w.isDuplicate("ev-1") {
		t.Fatal("first sighting flagged as duplicate")
	}
	if !w.isDuplicate("ev-1") {
		t.Fatal("second sighting not flagged")
	}
	if w.isDuplicate("ev-2") {
		t.Fatal("unrelated ID flagged")
	}
}
