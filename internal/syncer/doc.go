// Package syncer drains the outbox against the Registry Service.
//
// A drain takes the oldest BatchSize outbox entries, in insertion order,
// and submits each one. An accepted entry goes through the store's
// sync-success transaction; a failed one has its retry count incremented
// and, once the count reaches MaxRetries, is removed and its observation
// marked FAILED. Entries are independent: one failure never aborts the
// rest of the batch.
//
// # Triggers
//
// A drain starts only when the registry is online, the outbox is
// non-empty, no drain holds the engine lock, and Cooldown has elapsed
// since the previous drain. Triggers come from the Run loop's poll ticker
// and from ScheduleAfterInsert, which debounces bursts of ingress. A
// trigger that finds the lock held does nothing; the next natural trigger
// picks up the remaining work.
//
// After a batch the engine reports PhaseSuccess for SuccessWindow and
// only then releases the lock.
//
// # Shutdown
//
// A started batch is never cancelled. Stop prevents new drains and skips
// entries the current batch has not reached yet; Wait blocks until the
// current batch has settled its store writes.
package syncer
