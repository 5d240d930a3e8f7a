// Package chain provides the block-head abstraction the ledger components
// share: a monotonic height counter and a clock. One state-changing call
// equals one block, which gives delegation checkpoints and resolution
// snapshots their version stamps.
package chain

import (
	"sync/atomic"
	"time"
)

// Clock supplies the current time. The engine and token never read the wall
// clock directly so tests can substitute a fake.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Head is the shared monotonic height counter. Advance is called once at
// the start of every state-changing call.
type Head struct {
	height atomic.Uint64
}

// NewHead creates a Head starting at height 1; height 0 is reserved as the
// "never snapshotted" sentinel on markets.
func NewHead() *Head {
	h := &Head{}
	h.height.Store(1)
	return h
}

// Height returns the current block height.
func (h *Head) Height() uint64 { return h.height.Load() }

// Advance moves to the next block and returns the new height.
func (h *Head) Advance() uint64 { return h.height.Add(1) }
