// Package guard implements per-account, per-block admission control: every
// state-mutating entry point rejects a second call from the same account
// within the same block. This closes same-bundle manipulation where an actor
// reads a price, acts, self-triggers a price update, and acts again — it is
// a security control, not an optimization.
//
// The guard is keyed per account, so unrelated accounts proceed freely, and
// it releases itself at the next block with no explicit unlock.
package guard

import (
	"errors"
	"sync"
)

// ErrReentry is returned when an account re-enters within one block.
var ErrReentry = errors.New("guard: one call per account per block")

// Guard tracks the last block each account was admitted in.
type Guard struct {
	mu   sync.Mutex
	last map[string]uint64
}

// New creates an empty guard.
func New() *Guard {
	return &Guard{last: make(map[string]uint64)}
}

// Admit records account as acting in block, or fails with ErrReentry if it
// already acted in that block. The check and the update are atomic.
func (g *Guard) Admit(account string, block uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.last[account]; ok && prev == block {
		return ErrReentry
	}
	g.last[account] = block
	return nil
}

// Admitted reports whether account already acted in block, without
// recording anything.
func (g *Guard) Admitted(account string, block uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev, ok := g.last[account]
	return ok && prev == block
}

// Release clears account's admission for block. Callers use it when an
// admitted operation fails, so the rejection behaves like a full revert and
// the account may retry within the same block.
func (g *Guard) Release(account string, block uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.last[account]; ok && prev == block {
		delete(g.last, account)
	}
}
