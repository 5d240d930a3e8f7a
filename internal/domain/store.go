package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists write-through snapshots of market state. The engine
// is authoritative; the store exists for history and recovery.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id uint64) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// ProposalStore persists write-through snapshots of dispute proposals.
type ProposalStore interface {
	Upsert(ctx context.Context, proposal Proposal) error
	GetByID(ctx context.Context, id uint64) (Proposal, error)
	ListByMarket(ctx context.Context, marketID uint64) ([]Proposal, error)
}

// EventStore persists the append-only event log.
type EventStore interface {
	Insert(ctx context.Context, ev Event) error
	ListByMarket(ctx context.Context, marketID uint64, opts ListOpts) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// MarketCache caches serialized market views, invalidated on mutation.
type MarketCache interface {
	Get(ctx context.Context, id uint64) (Market, error)
	Set(ctx context.Context, market Market) error
	Invalidate(ctx context.Context, id uint64) error
}

// StreamMessage is one durable entry read back from an event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus fans events out to subscribers (the WebSocket hub and any
// external consumer listening on the same channels).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter throttles per-key request rates at the HTTP edge.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager serializes state-changing calls per key across replicas.
// Within one process the engine's own mutex is the atomic call boundary;
// the distributed lock extends it to multi-replica deployments.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobWriter stores archival objects.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

// BlobReader retrieves archival objects.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}

// Archiver exports finalized markets and their event history to blob storage.
type Archiver interface {
	ArchiveFinalized(ctx context.Context) (int, error)
}
