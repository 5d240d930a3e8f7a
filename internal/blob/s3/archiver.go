package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openpredict/predictiondao/internal/domain"
)

// archivePageSize bounds how many markets one sweep loads at a time.
const archivePageSize = 200

// ObjectChecker reports whether an archive object already exists. The
// Reader in this package satisfies it.
type ObjectChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver exports finalized markets and their event history to blob
// storage as newline-delimited JSON, one object per market. Finalized
// markets never change again, so each object is written exactly once.
//
// Deletion from the primary store is intentionally not performed here; the
// archive is a redundant export, not a migration.
type Archiver struct {
	writer  domain.BlobWriter
	checker ObjectChecker
	markets domain.MarketStore
	events  domain.EventStore
	logger  *slog.Logger
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, checker ObjectChecker, markets domain.MarketStore, events domain.EventStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  writer,
		checker: checker,
		markets: markets,
		events:  events,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveFinalized sweeps the market store and exports every finalized
// market that has no archive object yet. It returns the number of markets
// exported in this sweep.
func (a *Archiver) ArchiveFinalized(ctx context.Context) (int, error) {
	archived := 0

	for offset := 0; ; offset += archivePageSize {
		page, err := a.markets.List(ctx, domain.ListOpts{Limit: archivePageSize, Offset: offset})
		if err != nil {
			return archived, fmt.Errorf("s3blob: archive sweep list: %w", err)
		}
		if len(page) == 0 {
			return archived, nil
		}

		for _, m := range page {
			if !m.ResolverPaid {
				continue
			}

			path := marketArchivePath(m.ID)
			exists, err := a.checker.Exists(ctx, path)
			if err != nil {
				return archived, fmt.Errorf("s3blob: archive check %s: %w", path, err)
			}
			if exists {
				continue
			}

			if err := a.archiveMarket(ctx, m, path); err != nil {
				return archived, err
			}
			archived++

			a.logger.InfoContext(ctx, "market archived",
				slog.Uint64("market_id", m.ID),
				slog.String("path", path),
			)
		}
	}
}

// Run sweeps on the given interval until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := a.ArchiveFinalized(ctx)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive sweep failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "archive sweep complete", slog.Int("archived", n))
			}
		}
	}
}

// archiveMarket writes one market and its full event history as NDJSON.
// The first line is the market record; each following line is one event in
// log order.
func (a *Archiver) archiveMarket(ctx context.Context, m domain.Market, path string) error {
	events, err := a.events.ListByMarket(ctx, m.ID, domain.ListOpts{Limit: 0})
	if err != nil {
		return fmt.Errorf("s3blob: archive events for market %d: %w", m.ID, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("s3blob: archive encode market %d: %w", m.ID, err)
	}
	for i, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("s3blob: archive encode event %d of market %d: %w", i, m.ID, err)
		}
	}

	if err := a.writer.Put(ctx, path, buf.Bytes(), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive upload market %d: %w", m.ID, err)
	}
	return nil
}

// marketArchivePath builds the object key for one market's archive:
//
//	archive/markets/0000000042.jsonl
func marketArchivePath(id uint64) string {
	return fmt.Sprintf("archive/markets/%010d.jsonl", id)
}
