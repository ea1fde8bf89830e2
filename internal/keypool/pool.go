// Package keypool distributes generation requests across a fixed set of
// interchangeable provider API keys, rotating in strict round-robin order
// to spread per-key rate-limit budgets.
package keypool

import (
	"errors"
	"sync/atomic"
)

// ErrNoKeys is returned by New when the key set is empty. A pool without
// keys is a startup misconfiguration; the caller must refuse to start.
var ErrNoKeys = errors.New("keypool: no API keys configured")

// Pool hands out API keys in cyclic order. The key set is immutable after
// construction; only the rotation index mutates, via an atomic counter, so
// Acquire is safe to call from concurrent paths.
type Pool struct {
	keys []string
	next atomic.Uint64
}

// New creates a Pool from the given keys, dropping empty entries.
func New(keys []string) (*Pool, error) {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrNoKeys
	}
	return &Pool{keys: cleaned}, nil
}

// Acquire returns the next key in rotation. For a pool of size N, N
// consecutive calls return every key exactly once; call N+1 wraps back
// to the first.
func (p *Pool) Acquire() string {
	n := p.next.Add(1) - 1
	return p.keys[n%uint64(len(p.keys))]
}

// Size returns the number of keys in the pool.
func (p *Pool) Size() int {
	return len(p.keys)
}
