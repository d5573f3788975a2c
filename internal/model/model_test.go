package model

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusLocal, StatusSent, StatusSynced, StatusFailed} {
		assert.True(t, s.Valid(), "status %s", s)
	}
	assert.False(t, Status("PENDING").Valid())
	assert.False(t, Status("").Valid())
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusLocal.Terminal())
	assert.False(t, StatusSent.Terminal())
	assert.True(t, StatusSynced.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestValidationError_WrappedDetection(t *testing.T) {
	err := fmt.Errorf("submit: %w", NewValidationError("title", "must not be empty"))

	assert.True(t, IsValidationError(err))
	assert.Equal(t, "submit: validation: title: must not be empty", err.Error())
	assert.False(t, IsValidationError(ErrNotFound))
}

func TestNewAuditEntry(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	e := NewAuditEntry(now, EventSyncRetry, SeverityWarning, nil)

	_, err := uuid.Parse(e.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_000), e.Timestamp)
	assert.Equal(t, EventSyncRetry, e.Event)
	assert.Equal(t, SeverityWarning, e.Severity)
	assert.NotNil(t, e.Metadata)
}

func TestUUIDv4Generator(t *testing.T) {
	gen := UUIDv4Generator{}
	a, b := gen.Generate(), gen.Generate()

	assert.NotEqual(t, a, b)
	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.True(t, IsUUID(b))
	assert.False(t, IsUUID("not-a-uuid"))
}
