package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fieldnode/internal/model"
)

const outboxColumns = `seq, id, op_type, payload, retry_count, last_attempt`

// PutOutbox inserts an outbox entry or updates the existing entry with the
// same id. Updates keep the original insertion key, so a retried entry does
// not lose its place in the queue.
func (t *Tx) PutOutbox(entry model.OutboxEntry) error {
	if err := t.use(FamilyOutbox); err != nil {
		return err
	}
	if entry.RetryCount < 0 {
		return fmt.Errorf("write outbox %s: negative retry count %d", entry.ID, entry.RetryCount)
	}
	if entry.OpType == "" {
		entry.OpType = model.OpCreateReport
	}

	payload, err := marshalObservation(entry.Payload)
	if err != nil {
		return fmt.Errorf("write outbox %s: %w", entry.ID, err)
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO outbox (id, op_type, payload, retry_count, last_attempt)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			op_type = excluded.op_type,
			payload = excluded.payload,
			retry_count = excluded.retry_count,
			last_attempt = excluded.last_attempt
	`,
		entry.ID,
		string(entry.OpType),
		payload,
		entry.RetryCount,
		entry.LastAttempt,
	)
	if err != nil {
		return fmt.Errorf("write outbox %s: %w", entry.ID, err)
	}
	t.wrote(FamilyOutbox)
	return nil
}

// GetOutbox returns the outbox entry with id or model.ErrNotFound.
func (t *Tx) GetOutbox(id string) (model.OutboxEntry, error) {
	if err := t.use(FamilyOutbox); err != nil {
		return model.OutboxEntry{}, err
	}

	row := t.tx.QueryRowContext(t.ctx, `
		SELECT `+outboxColumns+` FROM outbox WHERE id = ?
	`, id)
	entry, err := scanOutbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.OutboxEntry{}, model.ErrNotFound
	}
	return entry, err
}

// DeleteOutbox removes the outbox entry with id.
func (t *Tx) DeleteOutbox(id string) error {
	if err := t.use(FamilyOutbox); err != nil {
		return err
	}

	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM outbox WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete outbox %s: %w", id, err)
	}
	if err := requireAffected(res, id); err != nil {
		return fmt.Errorf("delete outbox: %w", err)
	}
	t.wrote(FamilyOutbox)
	return nil
}

// ScanOutbox returns up to limit entries in ascending insertion order
// (oldest first). limit <= 0 returns all.
func (t *Tx) ScanOutbox(limit int) ([]model.OutboxEntry, error) {
	if err := t.use(FamilyOutbox); err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT `+outboxColumns+` FROM outbox
		ORDER BY seq ASC
		LIMIT ?
	`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	out := []model.OutboxEntry{}
	for rows.Next() {
		entry, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}

// CountOutbox returns the number of pending entries.
func (t *Tx) CountOutbox() (int, error) {
	if err := t.use(FamilyOutbox); err != nil {
		return 0, err
	}

	var n int
	if err := t.tx.QueryRowContext(t.ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return n, nil
}

func scanOutbox(row rowScanner) (model.OutboxEntry, error) {
	var (
		entry   model.OutboxEntry
		opType  string
		payload string
	)
	err := row.Scan(&entry.Seq, &entry.ID, &opType, &payload, &entry.RetryCount, &entry.LastAttempt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.OutboxEntry{}, err
		}
		return model.OutboxEntry{}, fmt.Errorf("scan outbox: %w", err)
	}
	entry.OpType = model.OpType(opType)

	if entry.Payload, err = unmarshalObservation(payload); err != nil {
		return model.OutboxEntry{}, fmt.Errorf("scan outbox %s: %w", entry.ID, err)
	}
	return entry, nil
}
