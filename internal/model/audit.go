package model

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies audit entries.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Audit event names.
const (
	EventIdentityCreated    = "IDENTITY_CREATED"
	EventObservationCreated = "OBSERVATION_CREATED"
	EventObservationPurged  = "OBSERVATION_PURGED"
	EventSyncSucceeded      = "SYNC_SUCCEEDED"
	EventSyncRetry          = "SYNC_RETRY"
	EventSyncExhausted      = "SYNC_EXHAUSTED"
	EventFeedRefreshed      = "FEED_REFRESHED"
)

// AuditEntry is an append-only log record. Metadata values are scalars
// (string, bool, int, int64, float64).
type AuditEntry struct {
	ID        string         `json:"id" yaml:"id"`
	Timestamp int64          `json:"timestamp" yaml:"timestamp"`
	Event     string         `json:"event" yaml:"event"`
	Severity  Severity       `json:"severity" yaml:"severity"`
	Metadata  map[string]any `json:"metadata" yaml:"metadata"`
}

// NewAuditEntry stamps a new audit entry with a random UUID.
func NewAuditEntry(now time.Time, event string, severity Severity, metadata map[string]any) AuditEntry {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: EpochMillis(now),
		Event:     event,
		Severity:  severity,
		Metadata:  metadata,
	}
}
