// Package model defines the record families owned by the local store:
// node identity, masked observations, the pending-write outbox, and the
// append-only audit log.
package model

import "time"

// Status is the synchronization state of an Observation.
type Status string

const (
	// StatusLocal means the record is committed locally and queued for sync.
	StatusLocal Status = "LOCAL"
	// StatusSent means the registry acknowledged the write.
	StatusSent Status = "SENT"
	// StatusSynced means the record was observed in the registry feed.
	StatusSynced Status = "SYNCED"
	// StatusFailed means the retry budget was exhausted.
	StatusFailed Status = "FAILED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusLocal, StatusSent, StatusSynced, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further automatic sync attempt follows s.
func (s Status) Terminal() bool {
	return s == StatusSynced || s == StatusFailed
}

// OpType identifies the remote operation an OutboxEntry stands for.
type OpType string

// OpCreateReport submits a new observation to the registry.
const OpCreateReport OpType = "CREATE_REPORT"

// MaskedStreet replaces raw street text in every persisted record.
const MaskedStreet = "[MASKED]"

// Identity is the pseudonymous identity of this device.
// Exactly one exists per store.
type Identity struct {
	NodeID    string    `json:"nodeId" yaml:"nodeId"`
	PublicKey string    `json:"publicKey" yaml:"publicKey"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// Observation is a privacy-masked field report.
//
// Lat and Lon always carry jitter; Geohash is derived from the jittered
// point. Street is either MaskedStreet or empty, never the raw input.
type Observation struct {
	ID                  string   `json:"id" yaml:"id"`
	CreatedAt           int64    `json:"createdAt" yaml:"createdAt"`
	Status              Status   `json:"status" yaml:"status"`
	Title               string   `json:"title" yaml:"title"`
	Street              string   `json:"street,omitempty" yaml:"street,omitempty"`
	ResidencyCommitment string   `json:"residencyCommitment,omitempty" yaml:"residencyCommitment,omitempty"`
	Tags                []string `json:"tags" yaml:"tags"`
	Lat                 float64  `json:"lat" yaml:"lat"`
	Lon                 float64  `json:"lon" yaml:"lon"`
	Geohash             string   `json:"geohash" yaml:"geohash"`
	ParentID            string   `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	MediaIDs            []string `json:"mediaIds" yaml:"mediaIds"`
}

// OutboxEntry is a pending write awaiting acknowledgement by the registry.
// Seq is the insertion key; batches are selected in ascending Seq order.
type OutboxEntry struct {
	Seq         int64       `json:"seq" yaml:"seq"`
	ID          string      `json:"id" yaml:"id"`
	OpType      OpType      `json:"opType" yaml:"opType"`
	Payload     Observation `json:"payload" yaml:"payload"`
	RetryCount  int         `json:"retryCount" yaml:"retryCount"`
	LastAttempt int64       `json:"lastAttempt" yaml:"lastAttempt"`
}

// EpochMillis converts t to milliseconds since the Unix epoch.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
