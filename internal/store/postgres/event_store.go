package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpredict/predictiondao/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The event log
// is append-only; rows are never updated or deleted.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Insert appends one event. The typed payload is stored as JSONB.
func (s *EventStore) Insert(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("postgres: marshal event payload: %w", err)
	}

	const query = `
		INSERT INTO events (id, type, at, height, market_id, proposal_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`
	_, err = s.pool.Exec(ctx, query,
		ev.ID, string(ev.Type), ev.At, ev.Height, ev.MarketID, ev.ProposalID, payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert event %s: %w", ev.Type, err)
	}
	return nil
}

const eventCols = `id, type, at, height, market_id, proposal_id, payload`

// ListByMarket returns a market's events in emission order.
func (s *EventStore) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT ` + eventCols + ` FROM events WHERE market_id = $1 ORDER BY height, at`
	args := []any{marketID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events for market %d: %w", marketID, err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListRecent returns the newest events first.
func (s *EventStore) ListRecent(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventCols+` FROM events ORDER BY height DESC, at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var (
			ev      domain.Event
			typ     string
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.At, &ev.Height, &ev.MarketID, &ev.ProposalID, &payload); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev.Type = domain.EventType(typ)
		if payload != nil {
			var data map[string]any
			if err := json.Unmarshal(payload, &data); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal event payload: %w", err)
			}
			ev.Data = data
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: event rows: %w", err)
	}
	return events, nil
}
