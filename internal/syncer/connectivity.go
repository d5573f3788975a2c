package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/fieldnode/internal/clock"
)

// Connectivity reports whether the registry is believed reachable.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// StaticConnectivity is a Connectivity set by hand.
type StaticConnectivity struct {
	online atomic.Bool
}

// NewStaticConnectivity creates a StaticConnectivity in the given state.
func NewStaticConnectivity(online bool) *StaticConnectivity {
	c := &StaticConnectivity{}
	c.online.Store(online)
	return c
}

// Set changes the reported state.
func (c *StaticConnectivity) Set(online bool) {
	c.online.Store(online)
}

// Online reports the current state.
func (c *StaticConnectivity) Online(context.Context) bool {
	return c.online.Load()
}

// HealthChecker probes the registry. Implemented by registry.Client.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// DefaultProbeTTL is how long a health probe result is reused.
const DefaultProbeTTL = 10 * time.Second

// HealthProbe is a Connectivity backed by the registry's health endpoint.
// Results are cached for the TTL so status reads stay cheap.
//
// Thread-safety: safe for concurrent use.
type HealthProbe struct {
	checker HealthChecker
	clock   clock.Clock
	ttl     time.Duration

	mu      sync.Mutex
	checked time.Time
	online  bool
}

// NewHealthProbe creates a probe. ttl <= 0 uses DefaultProbeTTL.
func NewHealthProbe(checker HealthChecker, clk clock.Clock, ttl time.Duration) *HealthProbe {
	if ttl <= 0 {
		ttl = DefaultProbeTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	return &HealthProbe{checker: checker, clock: clk, ttl: ttl}
}

// Online returns the cached result, probing when it is stale.
func (p *HealthProbe) Online(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	if !p.checked.IsZero() && now.Sub(p.checked) < p.ttl {
		return p.online
	}
	p.online = p.checker.Health(ctx) == nil
	p.checked = now
	return p.online
}

// Invalidate forces the next Online call to probe.
func (p *HealthProbe) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checked = time.Time{}
}
