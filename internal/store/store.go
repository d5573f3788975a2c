package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/fieldnode/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (identity, observations, outbox, audit_log, feed_cache)
const currentSchemaVersion = 1

// memoryPath opens a private in-memory database. Wipe has no files to remove.
const memoryPath = ":memory:"

// Family names a record family owned by the store.
type Family string

const (
	FamilyIdentity     Family = "identity"
	FamilyObservations Family = "observations"
	FamilyOutbox       Family = "outbox"
	FamilyAudit        Family = "audit_log"
	FamilyFeed         Family = "feed_cache"
)

// AllFamilies lists every family, in schema order.
var AllFamilies = []Family{FamilyIdentity, FamilyObservations, FamilyOutbox, FamilyAudit, FamilyFeed}

// Store provides durable storage for the node's record families.
// Uses SQLite with WAL mode and a single connection, so transactions are
// serialized.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	// mu guards db against Wipe/Close: transactions hold the read lock for
	// their full duration, Wipe and Close take the write lock.
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	subs   *notifier
	ids    model.IDGenerator
	logger *slog.Logger

	// auditNode labels every audit entry once the node identity is known.
	auditNode atomic.Pointer[string]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithAuditIDs sets the generator for audit entry ids.
// Defaults to model.UUIDv4Generator.
func WithAuditIDs(gen model.IDGenerator) Option {
	return func(s *Store) {
		s.ids = gen
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection also
	// serializes transactions for the store's atomicity guarantee.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:     db,
		path:   path,
		subs:   newNotifier(),
		ids:    model.UUIDv4Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LabelAudit sets the node id recorded as "nodeId" in the metadata of
// every later audit entry. An empty id clears the label.
func (s *Store) LabelAudit(nodeID string) {
	if nodeID == "" {
		s.auditNode.Store(nil)
		return
	}
	s.auditNode.Store(&nodeID)
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection. Pending transactions finish first.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.subs.closeAll()
	return err
}

// Wipe irreversibly destroys the store: it waits for in-flight
// transactions, closes the connection, and deletes the database files.
// Every later operation returns model.ErrStoreClosed.
func (s *Store) Wipe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return model.ErrStoreClosed
	}
	closeErr := s.db.Close()
	s.db = nil
	s.subs.closeAll()

	if s.path == memoryPath || s.path == "" {
		return closeErr
	}
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("wipe: remove %s: %w", p, err)
		}
	}
	s.logger.Info("store wiped", "path", s.path)
	return closeErr
}

// Transaction runs fn inside a single SQLite transaction scoped to the
// given families. Accessing an undeclared family from fn is an error.
// If fn returns an error, or commit fails, nothing fn wrote is persisted.
//
// Subscribers of every family fn wrote to are notified after commit.
func (s *Store) Transaction(ctx context.Context, families []Family, fn func(tx *Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return model.ErrStoreClosed
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	tx := newTx(ctx, sqlTx, families)
	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.subs.notify(tx.written)
	return nil
}

// Subscribe returns a channel that receives a signal after every committed
// transaction that wrote to family. Signals coalesce (buffer of 1). The
// channel is closed on Close or Wipe, or when cancel is called.
//
// Notifications are a convenience for views; transactions remain the
// source of truth.
func (s *Store) Subscribe(family Family) (<-chan struct{}, func()) {
	return s.subs.subscribe(family)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	if version == currentSchemaVersion {
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return model.ErrStoreClosed
	}

	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
