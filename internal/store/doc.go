// Package store provides SQLite-backed durable storage for a field node.
//
// The store owns five record families:
//   - identity: the single pseudonymous node identity
//   - observations: masked observation records
//   - outbox: pending writes awaiting acknowledgement by the registry
//   - audit_log: append-only event log, pruned by age
//   - feed_cache: bounded cache of the remote registry feed
//
// # Transactions
//
// Every read and write goes through Transaction, which declares the
// families it touches. All writes inside the callback commit together or
// not at all. The connection pool is limited to one connection, so
// transactions are serialized: no transaction observes another's partial
// state.
//
// The multi-family flows used by ingress and synchronization (CommitIngress,
// CommitSyncSuccess, RecordFailure, Purge, ApplyFeed) are built on
// Transaction and are the only way those families are mutated together.
//
// # Invariants
//
//   - An outbox entry exists iff its observation has not reached a terminal
//     sync state (enforced by the flows, not by callers).
//   - Raw street text is rejected; only model.MaskedStreet or "" is stored.
//   - Pruning never touches observations or outbox.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: outbox rows reference their observation
//
// Wipe destroys the database files. It waits for in-flight transactions to
// settle, and every later operation returns model.ErrStoreClosed.
package store
