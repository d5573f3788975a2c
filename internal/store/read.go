package store

import (
	"context"

	"github.com/roach88/fieldnode/internal/model"
)

// Single-family reads. Each runs in its own transaction.

// Identity returns the stored identity or model.ErrNotFound.
func (s *Store) Identity(ctx context.Context) (model.Identity, error) {
	var id model.Identity
	err := s.Transaction(ctx, []Family{FamilyIdentity}, func(tx *Tx) error {
		var err error
		id, err = tx.GetIdentity()
		return err
	})
	return id, err
}

// Observation returns one observation or model.ErrNotFound.
func (s *Store) Observation(ctx context.Context, id string) (model.Observation, error) {
	var obs model.Observation
	err := s.Transaction(ctx, []Family{FamilyObservations}, func(tx *Tx) error {
		var err error
		obs, err = tx.GetObservation(id)
		return err
	})
	return obs, err
}

// Observations returns up to limit observations, newest first.
func (s *Store) Observations(ctx context.Context, limit int) ([]model.Observation, error) {
	var out []model.Observation
	err := s.Transaction(ctx, []Family{FamilyObservations}, func(tx *Tx) error {
		var err error
		out, err = tx.ScanObservations(limit)
		return err
	})
	return out, err
}

// StatusCounts returns the number of observations per status.
func (s *Store) StatusCounts(ctx context.Context) (map[model.Status]int, error) {
	var out map[model.Status]int
	err := s.Transaction(ctx, []Family{FamilyObservations}, func(tx *Tx) error {
		var err error
		out, err = tx.CountObservationsByStatus()
		return err
	})
	return out, err
}

// Outbox returns up to limit pending entries, oldest first.
func (s *Store) Outbox(ctx context.Context, limit int) ([]model.OutboxEntry, error) {
	var out []model.OutboxEntry
	err := s.Transaction(ctx, []Family{FamilyOutbox}, func(tx *Tx) error {
		var err error
		out, err = tx.ScanOutbox(limit)
		return err
	})
	return out, err
}

// OutboxSize returns the number of pending entries.
func (s *Store) OutboxSize(ctx context.Context) (int, error) {
	var n int
	err := s.Transaction(ctx, []Family{FamilyOutbox}, func(tx *Tx) error {
		var err error
		n, err = tx.CountOutbox()
		return err
	})
	return n, err
}

// AuditLog returns up to limit audit entries, newest first.
func (s *Store) AuditLog(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	err := s.Transaction(ctx, []Family{FamilyAudit}, func(tx *Tx) error {
		var err error
		out, err = tx.ScanAudit(limit)
		return err
	})
	return out, err
}

// Feed returns up to limit cached registry reports, newest first.
func (s *Store) Feed(ctx context.Context, limit int) ([]model.Observation, error) {
	var out []model.Observation
	err := s.Transaction(ctx, []Family{FamilyFeed}, func(tx *Tx) error {
		var err error
		out, err = tx.ScanFeed(limit)
		return err
	})
	return out, err
}
