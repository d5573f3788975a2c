package store

import (
	"fmt"

	"github.com/roach88/fieldnode/internal/model"
)

// PutFeed caches a report fetched from the registry feed.
func (t *Tx) PutFeed(obs model.Observation, fetchedAt int64) error {
	if err := t.use(FamilyFeed); err != nil {
		return err
	}

	payload, err := marshalObservation(obs)
	if err != nil {
		return fmt.Errorf("write feed %s: %w", obs.ID, err)
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO feed_cache (id, created_at, fetched_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			fetched_at = excluded.fetched_at,
			payload = excluded.payload
	`, obs.ID, obs.CreatedAt, fetchedAt, payload)
	if err != nil {
		return fmt.Errorf("write feed %s: %w", obs.ID, err)
	}
	t.wrote(FamilyFeed)
	return nil
}

// ScanFeed returns up to limit cached reports, newest first.
func (t *Tx) ScanFeed(limit int) ([]model.Observation, error) {
	if err := t.use(FamilyFeed); err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT payload FROM feed_cache
		ORDER BY created_at DESC, id COLLATE BINARY ASC
		LIMIT ?
	`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	defer rows.Close()

	out := []model.Observation{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		obs, err := unmarshalObservation(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed: %w", err)
	}
	return out, nil
}

// CountFeed returns the number of cached reports.
func (t *Tx) CountFeed() (int, error) {
	if err := t.use(FamilyFeed); err != nil {
		return 0, err
	}

	var n int
	if err := t.tx.QueryRowContext(t.ctx, `SELECT COUNT(*) FROM feed_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count feed: %w", err)
	}
	return n, nil
}
