package gatekeeper

import (
	"context"
	"sync"
	"time"
)

// Memory is a Gatekeeper for a single process: a set of occupied endpoints
// guarded by a mutex. The mutex is only held for membership checks, never while
// sleeping.
type Memory struct {
	mu       sync.Mutex
	occupied map[string]struct{}
	opts     options
}

var _ Gatekeeper = (*Memory)(nil)

// NewMemory creates an empty in-memory gatekeeper.
func NewMemory(opts ...Option) *Memory {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Memory{
		occupied: make(map[string]struct{}),
		opts:     o,
	}
}

// Enter polls until endpoint is absent from the set, then inserts it.
func (g *Memory) Enter(ctx context.Context, endpoint string, timeout time.Duration) error {
	if endpoint == "" {
		return nil
	}

	return poll(ctx, &g.opts, endpoint, timeout, func() (bool, error) {
		return g.tryEnter(endpoint), nil
	})
}

func (g *Memory) tryEnter(endpoint string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.occupied[endpoint]; busy {
		return false
	}
	g.occupied[endpoint] = struct{}{}

	return true
}

// Exit removes endpoint from the set once the settle delay has passed.
func (g *Memory) Exit(endpoint string) {
	if endpoint == "" {
		return
	}

	if g.opts.settleDelay == 0 {
		g.release(endpoint)
		return
	}

	time.AfterFunc(g.opts.settleDelay, func() {
		g.release(endpoint)
	})
}

func (g *Memory) release(endpoint string) {
	g.mu.Lock()
	delete(g.occupied, endpoint)
	g.mu.Unlock()
}

// Occupied reports whether endpoint is currently held.
func (g *Memory) Occupied(endpoint string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, busy := g.occupied[endpoint]

	return busy
}

// Endpoints returns the currently held endpoints in no particular order.
func (g *Memory) Endpoints() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, 0, len(g.occupied))
	for ep := range g.occupied {
		out = append(out, ep)
	}

	return out
}
