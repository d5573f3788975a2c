package model

import "github.com/google/uuid"

// IDGenerator produces observation identifiers.
// Implemented by UUIDv4Generator (production) and testutil.FixedIDs (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv4Generator generates random RFC 4122 version 4 identifiers.
//
// Stateless and safe for concurrent use.
type UUIDv4Generator struct{}

// Generate returns a hyphenated UUIDv4 string.
// Panics if the system random source fails.
func (UUIDv4Generator) Generate() string {
	return uuid.Must(uuid.NewRandom()).String()
}

// IsUUID reports whether s parses as a UUID.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
