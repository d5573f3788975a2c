package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/fieldnode/internal/model"
)

// Tx is a transaction scoped to a declared set of families.
// It is only valid inside the Transaction callback that received it.
type Tx struct {
	ctx     context.Context
	tx      *sql.Tx
	scope   map[Family]bool
	written map[Family]bool
}

func newTx(ctx context.Context, tx *sql.Tx, families []Family) *Tx {
	scope := make(map[Family]bool, len(families))
	for _, f := range families {
		scope[f] = true
	}
	return &Tx{ctx: ctx, tx: tx, scope: scope, written: make(map[Family]bool)}
}

// ScopeError reports access to a family the transaction did not declare.
type ScopeError struct {
	Family Family
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("family %q not declared for this transaction", e.Family)
}

func (t *Tx) use(f Family) error {
	if !t.scope[f] {
		return &ScopeError{Family: f}
	}
	return nil
}

func (t *Tx) wrote(f Family) {
	t.written[f] = true
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// --- identity ---

// GetIdentity returns the stored identity or model.ErrNotFound.
func (t *Tx) GetIdentity() (model.Identity, error) {
	if err := t.use(FamilyIdentity); err != nil {
		return model.Identity{}, err
	}

	var (
		id        model.Identity
		createdAt int64
	)
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT node_id, public_key, created_at FROM identity WHERE singleton = 1
	`).Scan(&id.NodeID, &id.PublicKey, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Identity{}, model.ErrNotFound
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("read identity: %w", err)
	}
	id.CreatedAt = time.UnixMilli(createdAt).UTC()
	return id, nil
}

// PutIdentity stores the node identity. Identity is immutable: a second
// put returns model.ErrIdentityExists.
func (t *Tx) PutIdentity(id model.Identity) error {
	if err := t.use(FamilyIdentity); err != nil {
		return err
	}

	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO identity (singleton, node_id, public_key, created_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(singleton) DO NOTHING
	`, id.NodeID, id.PublicKey, id.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write identity: rows affected: %w", err)
	}
	if n == 0 {
		return model.ErrIdentityExists
	}
	t.wrote(FamilyIdentity)
	return nil
}

// --- observations ---

const observationColumns = `id, created_at, status, title, street, residency_commitment, tags, lat, lon, geohash, parent_id, media_ids`

// PutObservation inserts or replaces an observation.
// Raw street text is rejected; only model.MaskedStreet or "" may be stored.
func (t *Tx) PutObservation(obs model.Observation) error {
	if err := t.use(FamilyObservations); err != nil {
		return err
	}
	if obs.Street != "" && obs.Street != model.MaskedStreet {
		return fmt.Errorf("write observation %s: raw street text must not be persisted", obs.ID)
	}
	if !obs.Status.Valid() {
		return fmt.Errorf("write observation %s: invalid status %q", obs.ID, obs.Status)
	}

	tags, err := marshalStrings(obs.Tags)
	if err != nil {
		return fmt.Errorf("write observation %s: %w", obs.ID, err)
	}
	media, err := marshalStrings(obs.MediaIDs)
	if err != nil {
		return fmt.Errorf("write observation %s: %w", obs.ID, err)
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO observations (`+observationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			status = excluded.status,
			title = excluded.title,
			street = excluded.street,
			residency_commitment = excluded.residency_commitment,
			tags = excluded.tags,
			lat = excluded.lat,
			lon = excluded.lon,
			geohash = excluded.geohash,
			parent_id = excluded.parent_id,
			media_ids = excluded.media_ids
	`,
		obs.ID,
		obs.CreatedAt,
		string(obs.Status),
		obs.Title,
		obs.Street,
		obs.ResidencyCommitment,
		tags,
		obs.Lat,
		obs.Lon,
		obs.Geohash,
		obs.ParentID,
		media,
	)
	if err != nil {
		return fmt.Errorf("write observation %s: %w", obs.ID, err)
	}
	t.wrote(FamilyObservations)
	return nil
}

// GetObservation returns the observation with id or model.ErrNotFound.
func (t *Tx) GetObservation(id string) (model.Observation, error) {
	if err := t.use(FamilyObservations); err != nil {
		return model.Observation{}, err
	}

	row := t.tx.QueryRowContext(t.ctx, `
		SELECT `+observationColumns+` FROM observations WHERE id = ?
	`, id)
	obs, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Observation{}, model.ErrNotFound
	}
	return obs, err
}

// SetObservationStatus updates only the status of an observation.
func (t *Tx) SetObservationStatus(id string, status model.Status) error {
	if err := t.use(FamilyObservations); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("set status %s: invalid status %q", id, status)
	}

	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE observations SET status = ? WHERE id = ?
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	if err := requireAffected(res, id); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	t.wrote(FamilyObservations)
	return nil
}

// DeleteObservation removes an observation. Its outbox entry, if any, is
// removed by the foreign key cascade, so the outbox family must be in scope.
func (t *Tx) DeleteObservation(id string) error {
	if err := t.use(FamilyObservations); err != nil {
		return err
	}
	if err := t.use(FamilyOutbox); err != nil {
		return err
	}

	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM observations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete observation %s: %w", id, err)
	}
	if err := requireAffected(res, id); err != nil {
		return fmt.Errorf("delete observation: %w", err)
	}
	t.wrote(FamilyObservations)
	t.wrote(FamilyOutbox)
	return nil
}

// ScanObservations returns observations newest first. limit <= 0 returns
// all. Returns an empty slice (not nil) when there are none.
func (t *Tx) ScanObservations(limit int) ([]model.Observation, error) {
	if err := t.use(FamilyObservations); err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT `+observationColumns+` FROM observations
		ORDER BY created_at DESC, id COLLATE BINARY ASC
		LIMIT ?
	`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	out := []model.Observation{}
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return out, nil
}

// CountObservationsByStatus returns the number of observations per status.
func (t *Tx) CountObservationsByStatus() (map[model.Status]int, error) {
	if err := t.use(FamilyObservations); err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT status, COUNT(*) FROM observations GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count observations: %w", err)
	}
	defer rows.Close()

	out := map[model.Status]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan observation count: %w", err)
		}
		out[model.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observation counts: %w", err)
	}
	return out, nil
}

func scanObservation(row rowScanner) (model.Observation, error) {
	var (
		obs    model.Observation
		status string
		tags   string
		media  string
	)
	err := row.Scan(
		&obs.ID,
		&obs.CreatedAt,
		&status,
		&obs.Title,
		&obs.Street,
		&obs.ResidencyCommitment,
		&tags,
		&obs.Lat,
		&obs.Lon,
		&obs.Geohash,
		&obs.ParentID,
		&media,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Observation{}, err
		}
		return model.Observation{}, fmt.Errorf("scan observation: %w", err)
	}
	obs.Status = model.Status(status)

	if obs.Tags, err = unmarshalStrings(tags); err != nil {
		return model.Observation{}, fmt.Errorf("scan observation %s: %w", obs.ID, err)
	}
	if obs.MediaIDs, err = unmarshalStrings(media); err != nil {
		return model.Observation{}, fmt.Errorf("scan observation %s: %w", obs.ID, err)
	}
	return obs, nil
}

// requireAffected maps a zero-row UPDATE/DELETE to model.ErrNotFound.
func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, model.ErrNotFound)
	}
	return nil
}

// sqlLimit converts a non-positive limit into SQLite's "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
