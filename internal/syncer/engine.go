package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/fieldnode/internal/clock"
	"github.com/roach88/fieldnode/internal/metrics"
	"github.com/roach88/fieldnode/internal/model"
	"github.com/roach88/fieldnode/internal/registry"
	"github.com/roach88/fieldnode/internal/store"
)

// Defaults for Config.
const (
	DefaultBatchSize     = 5
	DefaultMaxRetries    = 5
	DefaultCooldown      = 5 * time.Second
	DefaultDebounce      = 3 * time.Second
	DefaultSuccessWindow = 2 * time.Second
	DefaultPollInterval  = 30 * time.Second
)

// Config holds the drain policy.
type Config struct {
	BatchSize     int
	MaxRetries    int
	Cooldown      time.Duration
	Debounce      time.Duration
	SuccessWindow time.Duration
	PollInterval  time.Duration
}

// DefaultConfig returns the standard drain policy.
func DefaultConfig() Config {
	return Config{
		BatchSize:     DefaultBatchSize,
		MaxRetries:    DefaultMaxRetries,
		Cooldown:      DefaultCooldown,
		Debounce:      DefaultDebounce,
		SuccessWindow: DefaultSuccessWindow,
		PollInterval:  DefaultPollInterval,
	}
}

// Phase is the display state of the engine.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseSyncing Phase = "syncing"
	PhaseSuccess Phase = "success"
)

// Skip explains why a trigger did not drain.
type Skip string

const (
	SkipNone     Skip = ""
	SkipStopped  Skip = "stopped"
	SkipBusy     Skip = "busy"
	SkipCooldown Skip = "cooldown"
	SkipOffline  Skip = "offline"
	SkipEmpty    Skip = "empty"
	SkipError    Skip = "error"
)

// DrainResult summarizes one trigger.
type DrainResult struct {
	Skipped   Skip `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Attempted int  `json:"attempted" yaml:"attempted"`
	Succeeded int  `json:"succeeded" yaml:"succeeded"`
	Retried   int  `json:"retried" yaml:"retried"`
	Exhausted int  `json:"exhausted" yaml:"exhausted"`
}

// Status is the read-only sync state shown to users.
type Status struct {
	QueueSize  int       `json:"queueSize" yaml:"queueSize"`
	IsSyncing  bool      `json:"isSyncing" yaml:"isSyncing"`
	IsOnline   bool      `json:"isOnline" yaml:"isOnline"`
	Phase      Phase     `json:"phase" yaml:"phase"`
	LastError  string    `json:"lastError,omitempty" yaml:"lastError,omitempty"`
	LastSyncAt time.Time `json:"lastSyncAt,omitzero" yaml:"lastSyncAt,omitempty"`
}

// Submitter sends one report to the registry. Implemented by
// registry.Client.
type Submitter interface {
	Submit(ctx context.Context, obs model.Observation) (registry.Ack, error)
}

// Engine is the outbox synchronization engine.
//
// Thread-safety: all methods are safe for concurrent use. Trigger runs
// the drain in the calling goroutine.
type Engine struct {
	store   *store.Store
	client  Submitter
	conn    Connectivity
	clock   clock.Clock
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	// busy is the non-reentrant drain lock.
	busy atomic.Bool
	wg   sync.WaitGroup

	mu          sync.Mutex
	stopped     bool
	aborted     bool
	done        chan struct{}
	debounce    clock.Timer
	release     clock.Timer
	lastAttempt time.Time
	phase       Phase
	lastErr     string
	lastSync    time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the drain policy. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		if cfg.BatchSize > 0 {
			e.cfg.BatchSize = cfg.BatchSize
		}
		if cfg.MaxRetries > 0 {
			e.cfg.MaxRetries = cfg.MaxRetries
		}
		if cfg.Cooldown > 0 {
			e.cfg.Cooldown = cfg.Cooldown
		}
		if cfg.Debounce > 0 {
			e.cfg.Debounce = cfg.Debounce
		}
		if cfg.SuccessWindow > 0 {
			e.cfg.SuccessWindow = cfg.SuccessWindow
		}
		if cfg.PollInterval > 0 {
			e.cfg.PollInterval = cfg.PollInterval
		}
	}
}

// WithClock sets the clock driving cool-down, debounce and timers.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine draining st into client.
func New(st *store.Store, client Submitter, conn Connectivity, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		client: client,
		conn:   conn,
		clock:  clock.New(),
		cfg:    DefaultConfig(),
		logger: slog.Default(),
		done:   make(chan struct{}),
		phase:  PhaseIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective drain policy.
func (e *Engine) Config() Config {
	return e.cfg
}

// Trigger attempts one drain cycle and returns what it did. It never
// blocks on another drain: if the lock is held it returns SkipBusy.
func (e *Engine) Trigger(ctx context.Context) DrainResult {
	if !e.busy.CompareAndSwap(false, true) {
		return e.skipped(SkipBusy)
	}

	batch, skip := e.prepare(ctx)
	if skip != SkipNone {
		e.busy.Store(false)
		return e.skipped(skip)
	}
	defer e.wg.Done()

	return e.drain(context.WithoutCancel(ctx), batch)
}

// TriggerNow cancels a pending debounced trigger and triggers at once.
// The lock and cool-down still apply.
func (e *Engine) TriggerNow(ctx context.Context) DrainResult {
	e.mu.Lock()
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	e.mu.Unlock()
	return e.Trigger(ctx)
}

// ScheduleAfterInsert schedules a trigger Debounce from now, replacing any
// pending one, so a burst of inserts causes a single drain.
func (e *Engine) ScheduleAfterInsert() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}
	if e.debounce != nil {
		e.debounce.Stop()
	}
	e.debounce = e.clock.AfterFunc(e.cfg.Debounce, func() {
		e.mu.Lock()
		e.debounce = nil
		e.mu.Unlock()
		e.Trigger(context.Background())
	})
}

// Run triggers a drain immediately and then every PollInterval until ctx
// is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("sync engine starting",
		"batch_size", e.cfg.BatchSize,
		"max_retries", e.cfg.MaxRetries,
		"poll_interval", e.cfg.PollInterval,
	)

	ticker := e.clock.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.Trigger(ctx)
	for {
		select {
		case <-ctx.Done():
			e.Stop()
			e.logger.Info("sync engine stopping: context cancelled")
			return ctx.Err()
		case <-e.done:
			e.logger.Info("sync engine stopping: stopped")
			return nil
		case <-ticker.C():
			e.Trigger(ctx)
		}
	}
}

// Stop prevents further drains and cancels pending timers. A batch in
// progress runs to completion; use Wait to block until it has.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopLocked()
}

// Abort stops the engine like Stop and also cuts a batch in progress
// short: entries not yet submitted are left in the outbox. The entry
// being submitted still settles; use Wait to block until it has. Abort is
// for session wipe only.
func (e *Engine) Abort() {
	e.mu.Lock()
	e.aborted = true
	e.stopLocked()
}

// stopLocked is called with e.mu held and releases it.
func (e *Engine) stopLocked() {
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.done)
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	held := e.release != nil && e.release.Stop()
	e.release = nil
	e.mu.Unlock()

	if held {
		e.unlock()
	}
}

// Wait blocks until no batch is in progress.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Status returns the current queue size, phase and connectivity.
func (e *Engine) Status(ctx context.Context) Status {
	n, err := e.store.OutboxSize(ctx)
	if err != nil && !errors.Is(err, model.ErrStoreClosed) {
		e.logger.Warn("sync status: outbox size unavailable", "error", err)
	}

	e.mu.Lock()
	st := Status{
		QueueSize:  n,
		IsSyncing:  e.phase == PhaseSyncing,
		Phase:      e.phase,
		LastError:  e.lastErr,
		LastSyncAt: e.lastSync,
	}
	e.mu.Unlock()

	st.IsOnline = e.conn.Online(ctx)
	return st
}

// prepare checks the trigger conditions while holding the lock and, when
// they hold, marks the drain as started and returns its batch.
func (e *Engine) prepare(ctx context.Context) ([]model.OutboxEntry, Skip) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil, SkipStopped
	}
	now := e.clock.Now()
	if !e.lastAttempt.IsZero() && now.Sub(e.lastAttempt) < e.cfg.Cooldown {
		e.mu.Unlock()
		return nil, SkipCooldown
	}
	e.mu.Unlock()

	if !e.conn.Online(ctx) {
		return nil, SkipOffline
	}

	batch, err := e.store.Outbox(ctx, e.cfg.BatchSize)
	if err != nil {
		if !errors.Is(err, model.ErrStoreClosed) {
			e.logger.Error("sync: read outbox", "error", err)
		}
		return nil, SkipError
	}
	if len(batch) == 0 {
		return nil, SkipEmpty
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil, SkipStopped
	}
	e.lastAttempt = e.clock.Now()
	e.phase = PhaseSyncing
	e.wg.Add(1)
	return batch, SkipNone
}

// drain processes one batch in insertion order.
func (e *Engine) drain(ctx context.Context, batch []model.OutboxEntry) DrainResult {
	var (
		res     DrainResult
		lastErr string
	)
	for _, entry := range batch {
		if e.isAborted() {
			break
		}
		res.Attempted++
		if err := e.process(ctx, entry, &res); err != nil {
			lastErr = err.Error()
		}
	}

	if n, err := e.store.OutboxSize(ctx); err == nil {
		e.metrics.SetOutboxDepth(n)
	}
	e.metrics.IncrementDrain("drained")
	e.logger.Info("sync drain complete",
		"attempted", res.Attempted,
		"succeeded", res.Succeeded,
		"retried", res.Retried,
		"exhausted", res.Exhausted,
	)

	e.mu.Lock()
	e.phase = PhaseSuccess
	e.lastSync = e.clock.Now()
	e.lastErr = lastErr
	hold := e.cfg.SuccessWindow > 0 && !e.stopped
	if hold {
		e.release = e.clock.AfterFunc(e.cfg.SuccessWindow, func() {
			e.mu.Lock()
			e.release = nil
			e.mu.Unlock()
			e.unlock()
		})
	}
	e.mu.Unlock()

	if !hold {
		e.unlock()
	}
	return res
}

// process submits one entry and records the outcome. It returns the
// submission error, if any. Store errors are logged, never returned.
func (e *Engine) process(ctx context.Context, entry model.OutboxEntry, res *DrainResult) error {
	start := e.clock.Now()
	_, submitErr := e.client.Submit(ctx, entry.Payload)
	now := e.clock.Now()

	if submitErr == nil {
		e.metrics.ObserveSubmit(metrics.ResultAccepted, now.Sub(start))
		if err := e.store.CommitSyncSuccess(ctx, entry.ID, now); err != nil {
			e.logger.Error("sync: record success", "id", entry.ID, "error", err)
			return nil
		}
		res.Succeeded++
		e.logger.Debug("report accepted", "id", entry.ID, "attempts", entry.RetryCount+1)
		return nil
	}

	out, err := e.store.RecordFailure(ctx, entry.ID, e.cfg.MaxRetries, now, submitErr)
	if err != nil {
		e.logger.Error("sync: record failure", "id", entry.ID, "error", err, "cause", submitErr)
		return submitErr
	}
	if out.Exhausted {
		res.Exhausted++
		e.metrics.ObserveSubmit(metrics.ResultFailed, now.Sub(start))
		e.logger.Warn("report exhausted retries",
			"id", entry.ID,
			"retry_count", out.RetryCount,
			"error", submitErr,
		)
		return submitErr
	}
	res.Retried++
	e.metrics.ObserveSubmit(metrics.ResultRetry, now.Sub(start))
	e.logger.Info("report submission failed, will retry",
		"id", entry.ID,
		"retry_count", out.RetryCount,
		"error", submitErr,
	)
	return submitErr
}

func (e *Engine) skipped(reason Skip) DrainResult {
	e.metrics.IncrementDrain(string(reason))
	return DrainResult{Skipped: reason}
}

func (e *Engine) unlock() {
	e.mu.Lock()
	if e.phase == PhaseSuccess {
		e.phase = PhaseIdle
	}
	e.mu.Unlock()
	e.busy.Store(false)
}

func (e *Engine) isAborted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborted
}
