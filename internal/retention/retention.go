// Package retention runs the periodic pruning sweep over the local store.
//
// A sweep removes audit entries older than AuditMaxAge and trims the feed
// cache to its FeedCap newest reports. Observations and outbox entries
// are never pruned; only an explicit purge or session wipe removes them.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/fieldnode/internal/clock"
	"github.com/roach88/fieldnode/internal/metrics"
	"github.com/roach88/fieldnode/internal/model"
	"github.com/roach88/fieldnode/internal/store"
)

// Defaults for Config.
const (
	DefaultAuditMaxAge = 24 * time.Hour
	DefaultFeedCap     = 200
	DefaultInterval    = time.Hour
)

// Config holds the retention policy.
type Config struct {
	AuditMaxAge time.Duration
	FeedCap     int
	Interval    time.Duration
}

// DefaultConfig returns the standard retention policy.
func DefaultConfig() Config {
	return Config{
		AuditMaxAge: DefaultAuditMaxAge,
		FeedCap:     DefaultFeedCap,
		Interval:    DefaultInterval,
	}
}

// Sweeper prunes the store on a schedule.
type Sweeper struct {
	store   *store.Store
	clock   clock.Clock
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithConfig sets the retention policy. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(s *Sweeper) {
		if cfg.AuditMaxAge > 0 {
			s.cfg.AuditMaxAge = cfg.AuditMaxAge
		}
		if cfg.FeedCap > 0 {
			s.cfg.FeedCap = cfg.FeedCap
		}
		if cfg.Interval > 0 {
			s.cfg.Interval = cfg.Interval
		}
	}
}

// WithClock sets the clock.
func WithClock(c clock.Clock) Option {
	return func(s *Sweeper) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// New creates a Sweeper for st.
func New(st *store.Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:  st,
		clock:  clock.New(),
		cfg:    DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs one pruning pass.
func (s *Sweeper) Sweep(ctx context.Context) (store.PruneResult, error) {
	cutoff := model.EpochMillis(s.clock.Now().Add(-s.cfg.AuditMaxAge))
	res, err := s.store.Prune(ctx, cutoff, s.cfg.FeedCap)
	if err != nil {
		return store.PruneResult{}, err
	}

	s.metrics.AddPruned(string(store.FamilyAudit), res.Audit)
	s.metrics.AddPruned(string(store.FamilyFeed), res.Feed)
	if res.Audit > 0 || res.Feed > 0 {
		s.logger.Info("retention sweep", "audit_removed", res.Audit, "feed_removed", res.Feed)
	}
	return res, nil
}

// Run sweeps immediately and then every Interval until ctx is cancelled.
// Sweep failures are logged and the loop continues; a wiped store ends it.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("retention sweeper starting", "interval", s.cfg.Interval, "audit_max_age", s.cfg.AuditMaxAge)

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil {
			if errors.Is(err, model.ErrStoreClosed) {
				s.logger.Info("retention sweeper stopping: store closed")
				return nil
			}
			s.logger.Error("retention sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopping: context cancelled")
			return ctx.Err()
		case <-ticker.C():
		}
	}
}
