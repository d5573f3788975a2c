package store

import (
	"context"
	"fmt"
)

// PruneResult reports how many rows a Prune removed per family.
type PruneResult struct {
	Audit int64
	Feed  int64
}

// Prune removes audit entries with a timestamp before auditCutoff (epoch
// ms) and trims the feed cache to its feedCap most recent reports. The
// overflow is deleted in one statement. feedCap <= 0 leaves the feed cache
// untouched.
//
// Observations and outbox entries are never pruned.
func (s *Store) Prune(ctx context.Context, auditCutoff int64, feedCap int) (PruneResult, error) {
	var res PruneResult
	err := s.Transaction(ctx, []Family{FamilyAudit, FamilyFeed}, func(tx *Tx) error {
		if err := tx.use(FamilyAudit); err != nil {
			return err
		}
		r, err := tx.tx.ExecContext(tx.ctx, `DELETE FROM audit_log WHERE timestamp < ?`, auditCutoff)
		if err != nil {
			return fmt.Errorf("prune audit log: %w", err)
		}
		if res.Audit, err = r.RowsAffected(); err != nil {
			return fmt.Errorf("prune audit log: rows affected: %w", err)
		}
		if res.Audit > 0 {
			tx.wrote(FamilyAudit)
		}

		if feedCap <= 0 {
			return nil
		}
		r, err = tx.tx.ExecContext(tx.ctx, `
			DELETE FROM feed_cache WHERE id NOT IN (
				SELECT id FROM feed_cache
				ORDER BY created_at DESC, id COLLATE BINARY ASC
				LIMIT ?
			)
		`, feedCap)
		if err != nil {
			return fmt.Errorf("prune feed cache: %w", err)
		}
		if res.Feed, err = r.RowsAffected(); err != nil {
			return fmt.Errorf("prune feed cache: rows affected: %w", err)
		}
		if res.Feed > 0 {
			tx.wrote(FamilyFeed)
		}
		return nil
	})
	if err != nil {
		return PruneResult{}, err
	}
	return res, nil
}
