package testutil

import (
	"fmt"
	"sync"
)

// FixedIDs returns predetermined identifiers in order.
//
// This enables deterministic observation IDs for golden comparisons.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDs creates a generator that returns ids in order.
func NewFixedIDs(ids ...string) *FixedIDs {
	return &FixedIDs{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed, to catch tests that create more
// records than they declared.
func (g *FixedIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedIDs: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// SeqSource replays a fixed sequence of values in [0, 1), cycling when
// exhausted. It stands in for the jitter random source.
type SeqSource struct {
	mu     sync.Mutex
	values []float64
	idx    int
}

// NewSeqSource creates a source that yields values in order.
// With no values it always yields 0.5 (zero jitter).
func NewSeqSource(values ...float64) *SeqSource {
	if len(values) == 0 {
		values = []float64{0.5}
	}
	return &SeqSource{values: values}
}

// Float64 returns the next value.
func (s *SeqSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.idx%len(s.values)]
	s.idx++
	return v
}

// SeqIDs generates prefix-0001, prefix-0002, ... without limit.
type SeqIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSeqIDs creates a sequential generator with the given prefix.
func NewSeqIDs(prefix string) *SeqIDs {
	return &SeqIDs{prefix: prefix}
}

// Generate returns the next sequential id.
func (g *SeqIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
