// Package node is the ingress facade of a field node. It turns raw
// submissions into masked observations, commits them with their outbox
// entries, and exposes the read-only views and destructive operations the
// UI layer needs.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/fieldnode/internal/clock"
	"github.com/roach88/fieldnode/internal/identity"
	"github.com/roach88/fieldnode/internal/masking"
	"github.com/roach88/fieldnode/internal/metrics"
	"github.com/roach88/fieldnode/internal/model"
	"github.com/roach88/fieldnode/internal/store"
	"github.com/roach88/fieldnode/internal/syncer"
)

// MaxTitleLength bounds the title in runes.
const MaxTitleLength = 200

// Submission is the raw input of one observation. Street and Location are
// transient: only their masked forms are persisted.
type Submission struct {
	Title    string
	Street   string
	Tags     []string
	ParentID string
	MediaIDs []string

	// Location is the raw coordinate. Nil uses the node's home location.
	Location *masking.Point
}

// FeedSource fetches the registry's current reports, newest first.
type FeedSource interface {
	List(ctx context.Context) ([]model.Observation, error)
}

// FeedResult summarizes one feed refresh.
type FeedResult struct {
	Count    int `json:"count" yaml:"count"`
	Promoted int `json:"promoted" yaml:"promoted"`
}

// Node wires the store, identity, masking and sync engine behind the
// inbound operations.
type Node struct {
	store    *store.Store
	identity *identity.Manager
	engine   *syncer.Engine
	feed     FeedSource

	clock   clock.Clock
	ids     model.IDGenerator
	source  masking.Source
	salt    string
	home    masking.Point
	logger  *slog.Logger
	metrics *metrics.Metrics

	refresh singleflight.Group
}

// Option configures a Node.
type Option func(*Node)

// WithClock sets the clock used for createdAt and audit timestamps.
func WithClock(c clock.Clock) Option {
	return func(n *Node) { n.clock = c }
}

// WithIDs sets the observation id generator.
func WithIDs(gen model.IDGenerator) Option {
	return func(n *Node) { n.ids = gen }
}

// WithSource sets the random source for coordinate jitter.
func WithSource(src masking.Source) Option {
	return func(n *Node) { n.source = src }
}

// WithSalt sets the residency commitment salt.
func WithSalt(salt string) Option {
	return func(n *Node) { n.salt = salt }
}

// WithHome sets the location used when a submission carries none.
func WithHome(p masking.Point) Option {
	return func(n *Node) { n.home = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Node) { n.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Node) { n.metrics = m }
}

// New creates a Node. feed may be nil, in which case RefreshFeed fails.
func New(st *store.Store, id *identity.Manager, engine *syncer.Engine, feed FeedSource, opts ...Option) *Node {
	n := &Node{
		store:    st,
		identity: id,
		engine:   engine,
		feed:     feed,
		clock:    clock.New(),
		ids:      model.UUIDv4Generator{},
		source:   masking.DefaultSource,
		salt:     masking.DefaultSalt,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Identity returns the persisted identity.
func (n *Node) Identity(ctx context.Context) (model.Identity, error) {
	return n.identity.Load(ctx)
}

// SubmitObservation validates and masks sub, then commits the observation,
// its outbox entry and an audit entry atomically. The returned record is
// the persisted one. A sync is scheduled after the debounce delay.
//
// Validation failures return a *model.ValidationError and write nothing.
func (n *Node) SubmitObservation(ctx context.Context, sub Submission) (model.Observation, error) {
	obs, err := n.build(sub)
	if err != nil {
		n.metrics.IncrementRejected()
		return model.Observation{}, err
	}

	entry, err := n.store.CommitIngress(ctx, obs, n.clock.Now())
	if err != nil {
		if model.IsValidationError(err) {
			n.metrics.IncrementRejected()
		}
		return model.Observation{}, fmt.Errorf("submit observation: %w", err)
	}

	n.metrics.IncrementCreated()
	n.logger.Info("observation committed", "id", entry.ID, "geohash", entry.Payload.Geohash)
	n.engine.ScheduleAfterInsert()
	return entry.Payload, nil
}

// build produces the masked record for sub. Raw street text and the raw
// point do not outlive this call.
func (n *Node) build(sub Submission) (model.Observation, error) {
	title := strings.TrimSpace(sub.Title)
	if title == "" {
		return model.Observation{}, model.NewValidationError("title", "must not be empty")
	}
	if len([]rune(title)) > MaxTitleLength {
		return model.Observation{}, model.NewValidationError("title", "longer than %d characters", MaxTitleLength)
	}

	tags, err := cleanList("tags", sub.Tags)
	if err != nil {
		return model.Observation{}, err
	}
	media, err := cleanList("mediaIds", sub.MediaIDs)
	if err != nil {
		return model.Observation{}, err
	}

	parent := strings.TrimSpace(sub.ParentID)
	if parent != "" && !model.IsUUID(parent) {
		return model.Observation{}, model.NewValidationError("parentId", "not a valid UUID")
	}

	point := n.home
	if sub.Location != nil {
		point = *sub.Location
	}
	if !point.Valid() {
		return model.Observation{}, model.NewValidationError("location", "coordinates out of range")
	}
	masked := masking.Mask(n.source, point)

	obs := model.Observation{
		ID:        n.ids.Generate(),
		CreatedAt: model.EpochMillis(n.clock.Now()),
		Status:    model.StatusLocal,
		Title:     title,
		Tags:      tags,
		Lat:       masked.Lat(),
		Lon:       masked.Lon(),
		Geohash:   masked.Geohash(),
		ParentID:  parent,
		MediaIDs:  media,
	}
	if commitment := masking.CommitResidency(sub.Street, n.salt); commitment != "" {
		obs.Street = model.MaskedStreet
		obs.ResidencyCommitment = commitment
	}
	return obs, nil
}

// cleanList trims each value and rejects blanks and duplicates.
func cleanList(field string, values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, model.NewValidationError(field, "contains an empty value")
		}
		if seen[v] {
			return nil, model.NewValidationError(field, "duplicate value %q", v)
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

// SyncStatus returns the queue size, drain state and connectivity.
func (n *Node) SyncStatus(ctx context.Context) syncer.Status {
	return n.engine.Status(ctx)
}

// Sync runs one drain cycle now, subject to the engine's lock and
// cool-down.
func (n *Node) Sync(ctx context.Context) syncer.DrainResult {
	return n.engine.TriggerNow(ctx)
}

// WipeSession aborts the sync engine, waits for the entry in flight to
// settle, destroys the store, and drops the in-memory signing key. It is
// irreversible; every later operation returns model.ErrStoreClosed.
func (n *Node) WipeSession(ctx context.Context) error {
	n.engine.Abort()
	n.engine.Wait()

	if err := n.store.Wipe(); err != nil {
		return fmt.Errorf("wipe session: %w", err)
	}
	n.identity.Forget()
	n.logger.Warn("session wiped")
	return nil
}

// Purge deletes one observation and any outbox entry it still has.
func (n *Node) Purge(ctx context.Context, id string) error {
	if err := n.store.Purge(ctx, id, n.clock.Now()); err != nil {
		return err
	}
	n.logger.Info("observation purged", "id", id)
	return nil
}

// Observation returns one local observation.
func (n *Node) Observation(ctx context.Context, id string) (model.Observation, error) {
	return n.store.Observation(ctx, id)
}

// Observations lists local observations newest first. limit <= 0 means all.
func (n *Node) Observations(ctx context.Context, limit int) ([]model.Observation, error) {
	return n.store.Observations(ctx, limit)
}

// Outbox lists pending entries in drain order.
func (n *Node) Outbox(ctx context.Context, limit int) ([]model.OutboxEntry, error) {
	return n.store.Outbox(ctx, limit)
}

// AuditLog lists audit entries newest first.
func (n *Node) AuditLog(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	return n.store.AuditLog(ctx, limit)
}

// Feed lists cached registry reports newest first.
func (n *Node) Feed(ctx context.Context, limit int) ([]model.Observation, error) {
	return n.store.Feed(ctx, limit)
}

// RefreshFeed fetches the registry feed, caches it, and promotes local SENT
// observations that appear in it to SYNCED. Concurrent calls share one
// fetch.
func (n *Node) RefreshFeed(ctx context.Context) (FeedResult, error) {
	if n.feed == nil {
		return FeedResult{}, errors.New("refresh feed: no registry configured")
	}

	v, err, shared := n.refresh.Do("feed", func() (any, error) {
		reports, err := n.feed.List(ctx)
		if err != nil {
			return FeedResult{}, err
		}
		promoted, err := n.store.ApplyFeed(ctx, reports, n.clock.Now())
		if err != nil {
			return FeedResult{}, err
		}
		return FeedResult{Count: len(reports), Promoted: promoted}, nil
	})
	if err != nil {
		return FeedResult{}, fmt.Errorf("refresh feed: %w", err)
	}

	res := v.(FeedResult)
	n.logger.Debug("feed refreshed", "count", res.Count, "promoted", res.Promoted, "shared", shared)
	return res, nil
}
