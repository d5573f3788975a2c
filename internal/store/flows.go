package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/fieldnode/internal/model"
)

// newAudit stamps an audit entry with the store's id generator and, once
// known, the node id.
func (s *Store) newAudit(now time.Time, event string, severity model.Severity, metadata map[string]any) model.AuditEntry {
	entry := model.NewAuditEntry(now, event, severity, metadata)
	entry.ID = s.ids.Generate()
	if node := s.auditNode.Load(); node != nil {
		if _, ok := entry.Metadata["nodeId"]; !ok {
			entry.Metadata["nodeId"] = *node
		}
	}
	return entry
}

// CreateIdentity persists the node identity and records an INFO audit
// entry carrying the derived node id. Returns model.ErrIdentityExists if
// an identity is already stored; nothing is written in that case.
func (s *Store) CreateIdentity(ctx context.Context, id model.Identity) error {
	families := []Family{FamilyIdentity, FamilyAudit}
	return s.Transaction(ctx, families, func(tx *Tx) error {
		if err := tx.PutIdentity(id); err != nil {
			return err
		}
		return tx.AppendAudit(s.newAudit(id.CreatedAt, model.EventIdentityCreated, model.SeverityInfo, map[string]any{
			"nodeId": id.NodeID,
		}))
	})
}

// CommitIngress writes a new observation with status LOCAL, its outbox
// entry with retry count 0, and an INFO audit entry in one transaction.
// Either all three are persisted or none is.
//
// A non-empty ParentID must name an existing observation.
func (s *Store) CommitIngress(ctx context.Context, obs model.Observation, now time.Time) (model.OutboxEntry, error) {
	obs.Status = model.StatusLocal
	obs = normalizeObservation(obs)

	var entry model.OutboxEntry
	families := []Family{FamilyObservations, FamilyOutbox, FamilyAudit}
	err := s.Transaction(ctx, families, func(tx *Tx) error {
		if _, err := tx.GetObservation(obs.ID); err == nil {
			return fmt.Errorf("ingress %s: observation already exists", obs.ID)
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		if obs.ParentID != "" {
			if _, err := tx.GetObservation(obs.ParentID); errors.Is(err, model.ErrNotFound) {
				return model.NewValidationError("parentId", "unknown parent observation %s", obs.ParentID)
			} else if err != nil {
				return err
			}
		}

		if err := tx.PutObservation(obs); err != nil {
			return err
		}
		if err := tx.PutOutbox(model.OutboxEntry{
			ID:      obs.ID,
			OpType:  model.OpCreateReport,
			Payload: obs,
		}); err != nil {
			return err
		}
		if err := tx.AppendAudit(s.newAudit(now, model.EventObservationCreated, model.SeverityInfo, map[string]any{
			"id":      obs.ID,
			"geohash": obs.Geohash,
		})); err != nil {
			return err
		}

		var err error
		entry, err = tx.GetOutbox(obs.ID)
		return err
	})
	if err != nil {
		return model.OutboxEntry{}, err
	}
	return entry, nil
}

// CommitSyncSuccess marks the observation SENT, removes its outbox entry
// and records an INFO audit entry, atomically.
func (s *Store) CommitSyncSuccess(ctx context.Context, id string, now time.Time) error {
	families := []Family{FamilyObservations, FamilyOutbox, FamilyAudit}
	return s.Transaction(ctx, families, func(tx *Tx) error {
		entry, err := tx.GetOutbox(id)
		if err != nil {
			return fmt.Errorf("sync success %s: %w", id, err)
		}
		if err := tx.SetObservationStatus(id, model.StatusSent); err != nil {
			return err
		}
		if err := tx.DeleteOutbox(id); err != nil {
			return err
		}
		return tx.AppendAudit(s.newAudit(now, model.EventSyncSucceeded, model.SeverityInfo, map[string]any{
			"id":       id,
			"attempts": entry.RetryCount + 1,
		}))
	})
}

// FailureOutcome describes what RecordFailure did with an entry.
type FailureOutcome struct {
	RetryCount int
	Exhausted  bool
}

// RecordFailure counts a failed submission of the outbox entry id.
//
// Below maxRetries the entry stays queued with its retry count incremented
// and lastAttempt set to now, and a WARNING audit entry is appended. When
// the incremented count reaches maxRetries the entry is removed, the
// observation is marked FAILED, and exactly one CRITICAL audit entry is
// appended. Both paths are a single transaction.
func (s *Store) RecordFailure(ctx context.Context, id string, maxRetries int, now time.Time, cause error) (FailureOutcome, error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}

	var out FailureOutcome
	families := []Family{FamilyObservations, FamilyOutbox, FamilyAudit}
	err := s.Transaction(ctx, families, func(tx *Tx) error {
		entry, err := tx.GetOutbox(id)
		if err != nil {
			return fmt.Errorf("record failure %s: %w", id, err)
		}
		entry.RetryCount++
		entry.LastAttempt = model.EpochMillis(now)
		out.RetryCount = entry.RetryCount

		meta := map[string]any{
			"id":         id,
			"retryCount": entry.RetryCount,
			"error":      reason,
		}

		if entry.RetryCount >= maxRetries {
			out.Exhausted = true
			if err := tx.DeleteOutbox(id); err != nil {
				return err
			}
			if err := tx.SetObservationStatus(id, model.StatusFailed); err != nil {
				return err
			}
			return tx.AppendAudit(s.newAudit(now, model.EventSyncExhausted, model.SeverityCritical, meta))
		}

		if err := tx.PutOutbox(entry); err != nil {
			return err
		}
		return tx.AppendAudit(s.newAudit(now, model.EventSyncRetry, model.SeverityWarning, meta))
	})
	if err != nil {
		return FailureOutcome{}, err
	}
	return out, nil
}

// Purge deletes an observation and any outbox entry for it, recording an
// INFO audit entry. Returns a wrapped model.ErrNotFound for unknown ids.
func (s *Store) Purge(ctx context.Context, id string, now time.Time) error {
	families := []Family{FamilyObservations, FamilyOutbox, FamilyAudit}
	return s.Transaction(ctx, families, func(tx *Tx) error {
		obs, err := tx.GetObservation(id)
		if err != nil {
			return fmt.Errorf("purge %s: %w", id, err)
		}
		if err := tx.DeleteObservation(id); err != nil {
			return err
		}
		return tx.AppendAudit(s.newAudit(now, model.EventObservationPurged, model.SeverityInfo, map[string]any{
			"id":     id,
			"status": string(obs.Status),
		}))
	})
}

// ApplyFeed caches reports fetched from the registry and promotes local
// observations found among them from SENT to SYNCED. Returns the number
// promoted.
func (s *Store) ApplyFeed(ctx context.Context, reports []model.Observation, now time.Time) (int, error) {
	fetchedAt := model.EpochMillis(now)
	promoted := 0

	families := []Family{FamilyObservations, FamilyFeed, FamilyAudit}
	err := s.Transaction(ctx, families, func(tx *Tx) error {
		promoted = 0
		for _, r := range reports {
			if err := tx.PutFeed(r, fetchedAt); err != nil {
				return err
			}
			local, err := tx.GetObservation(r.ID)
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if local.Status != model.StatusSent {
				continue
			}
			if err := tx.SetObservationStatus(r.ID, model.StatusSynced); err != nil {
				return err
			}
			promoted++
		}
		return tx.AppendAudit(s.newAudit(now, model.EventFeedRefreshed, model.SeverityInfo, map[string]any{
			"count":    len(reports),
			"promoted": promoted,
		}))
	})
	if err != nil {
		return 0, err
	}
	return promoted, nil
}
