package retention

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldnode/internal/model"
	"github.com/roach88/fieldnode/internal/store"
	"github.com/roach88/fieldnode/internal/testutil"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "node.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func appendAudit(t *testing.T, st *store.Store, at time.Time, event string) {
	t.Helper()
	err := st.Transaction(context.Background(), []store.Family{store.FamilyAudit}, func(tx *store.Tx) error {
		return tx.AppendAudit(model.NewAuditEntry(at, event, model.SeverityInfo, nil))
	})
	require.NoError(t, err)
}

func TestSweep_RemovesOnlyExpiredAudit(t *testing.T) {
	st := newTestStore(t)
	clk := testutil.NewFakeClock(testStart)
	appendAudit(t, st, testStart.Add(-25*time.Hour), "AGED_25H")
	appendAudit(t, st, testStart.Add(-1*time.Hour), "AGED_1H")

	res, err := New(st, WithClock(clk)).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Audit)

	entries, err := st.AuditLog(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "AGED_1H", entries[0].Event)
}

func TestSweep_CapsFeed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	reports := make([]model.Observation, 0, 12)
	for i := 0; i < 12; i++ {
		reports = append(reports, model.Observation{ID: fmt.Sprintf("r%02d", i), CreatedAt: int64(i), Status: model.StatusSynced})
	}
	_, err := st.ApplyFeed(ctx, reports, testStart)
	require.NoError(t, err)

	s := New(st, WithClock(testutil.NewFakeClock(testStart)), WithConfig(Config{FeedCap: 10}))
	res, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Feed)

	feed, err := st.Feed(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, feed, 10)
	assert.Equal(t, "r11", feed[0].ID)
}

func TestRun_SweepsOnTick(t *testing.T) {
	st := newTestStore(t)
	clk := testutil.NewFakeClock(testStart)
	s := New(st, WithClock(clk), WithConfig(Config{Interval: time.Hour}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	// An entry that expires once the clock passes 24h.
	appendAudit(t, st, testStart, "FRESH")

	require.Eventually(t, func() bool {
		clk.Advance(time.Hour)
		entries, err := st.AuditLog(context.Background(), 0)
		return err == nil && len(entries) == 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestRun_StopsWhenStoreWiped(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Wipe())

	err := New(st).Run(context.Background())
	assert.NoError(t, err)
}

func TestWithConfig_KeepsDefaultsForZeroFields(t *testing.T) {
	s := New(newTestStore(t), WithConfig(Config{FeedCap: 5}))
	assert.Equal(t, Config{AuditMaxAge: DefaultAuditMaxAge, FeedCap: 5, Interval: DefaultInterval}, s.cfg)
}
