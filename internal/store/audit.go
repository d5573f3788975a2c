package store

import (
	"fmt"

	"github.com/roach88/fieldnode/internal/model"
)

// AppendAudit appends an entry to the audit log. Entries are never updated.
// Severity is checked by the schema; an unknown severity aborts the
// enclosing transaction.
func (t *Tx) AppendAudit(entry model.AuditEntry) error {
	if err := t.use(FamilyAudit); err != nil {
		return err
	}
	if entry.ID == "" {
		return fmt.Errorf("append audit %s: missing id", entry.Event)
	}

	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return fmt.Errorf("append audit %s: %w", entry.Event, err)
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO audit_log (id, timestamp, event, severity, metadata)
		VALUES (?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.Timestamp,
		entry.Event,
		string(entry.Severity),
		metadata,
	)
	if err != nil {
		return fmt.Errorf("append audit %s: %w", entry.Event, err)
	}
	t.wrote(FamilyAudit)
	return nil
}

// ScanAudit returns up to limit entries, newest first. limit <= 0 returns
// all.
func (t *Tx) ScanAudit(limit int) ([]model.AuditEntry, error) {
	if err := t.use(FamilyAudit); err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT id, timestamp, event, severity, metadata FROM audit_log
		ORDER BY seq DESC
		LIMIT ?
	`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	out := []model.AuditEntry{}
	for rows.Next() {
		var (
			entry    model.AuditEntry
			severity string
			metadata string
		)
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.Event, &severity, &metadata); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Severity = model.Severity(severity)
		if entry.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return nil, fmt.Errorf("scan audit entry %s: %w", entry.ID, err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return out, nil
}
