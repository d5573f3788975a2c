package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldnode/internal/config"
	"github.com/roach88/fieldnode/internal/model"
	"github.com/roach88/fieldnode/internal/syncer"
)

func TestInit_CreatesThenLoads(t *testing.T) {
	e := newEnv(t)

	out, code := e.run(t, "init", "--format", "json")
	require.Equal(t, ExitSuccess, code)
	var first identityView
	decode(t, out, &first)
	assert.True(t, first.Created)
	assert.Len(t, first.NodeID, 12)

	out, code = e.run(t, "init", "--format", "json")
	require.Equal(t, ExitSuccess, code)
	var second identityView
	decode(t, out, &second)
	assert.False(t, second.Created)
	assert.Equal(t, first.NodeID, second.NodeID)
}

func TestSubmit_MasksAndQueues(t *testing.T) {
	e := newEnv(t)

	obs := e.submit(t, "--title", "GRID_OUTAGE", "--street", "Broad & Main St", "--tag", "power", "--lat", "39.9526", "--lon", "-75.1652")
	assert.Equal(t, model.StatusLocal, obs.Status)
	assert.Equal(t, model.MaskedStreet, obs.Street)
	assert.NotEmpty(t, obs.ResidencyCommitment)
	assert.InDelta(t, 39.9526, obs.Lat, 0.0045)
	assert.InDelta(t, -75.1652, obs.Lon, 0.0045)
	assert.Equal(t, []string{"power"}, obs.Tags)

	out, code := e.run(t, "list", "--outbox", "--format", "json")
	require.Equal(t, ExitSuccess, code)
	var entries []model.OutboxEntry
	decode(t, out, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, obs.ID, entries[0].ID)
	assert.Equal(t, 0, entries[0].RetryCount)
	assert.NotContains(t, out, "Broad")
}

func TestSubmit_Rejected(t *testing.T) {
	e := newEnv(t)

	_, code := e.run(t, "submit", "--title", "   ")
	assert.Equal(t, ExitFailure, code)

	_, code = e.run(t, "submit", "--title", "x", "--lat", "95", "--lon", "0")
	assert.Equal(t, ExitFailure, code)

	_, code = e.run(t, "submit")
	assert.NotEqual(t, ExitSuccess, code)

	out, code := e.run(t, "list", "--format", "json")
	require.Equal(t, ExitSuccess, code)
	var list []model.Observation
	decode(t, out, &list)
	assert.Empty(t, list)
}

func TestListAndShow(t *testing.T) {
	e := newEnv(t)
	obs := e.submit(t, "--title", "pothole")

	out, code := e.run(t, "list")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, obs.ID)
	assert.Contains(t, out, "pothole")

	out, code = e.run(t, "list", obs.ID)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Title:     pothole")

	_, code = e.run(t, "list", "00000000-0000-4000-8000-000000000099")
	assert.Equal(t, ExitFailure, code)
}

func TestSyncThenFeed(t *testing.T) {
	e := newEnv(t)
	obs := e.submit(t, "--title", "flood", "--street", "1 Water St")

	out, code := e.run(t, "sync", "--format", "json")
	require.Equal(t, ExitSuccess, code)
	var drain drainView
	decode(t, out, &drain)
	assert.Equal(t, syncer.SkipNone, drain.Result.Skipped)
	assert.Equal(t, 1, drain.Result.Succeeded)
	assert.Equal(t, 0, drain.Queue)
	require.Len(t, e.reg.Submissions(), 1)
	assert.Equal(t, obs.ID, e.reg.Submissions()[0].ID)

	out, code = e.run(t, "list", obs.ID, "--format", "json")
	require.Equal(t, ExitSuccess, code)
	var sent model.Observation
	decode(t, out, &sent)
	assert.Equal(t, model.StatusSent, sent.Status)

	out, code = e.run(t, "feed", "--format", "json")
	require.Equal(t, ExitSuccess, code)
	var feed feedView
	decode(t, out, &feed)
	require.NotNil(t, feed.Refresh)
	assert.Equal(t, 1, feed.Refresh.Promoted)
	require.Len(t, feed.Reports, 1)

	out, code = e.run(t, "status", "--format", "json")
	require.Equal(t, ExitSuccess, code)
	var status statusView
	decode(t, out, &status)
	assert.Equal(t, 1, status.Counts[model.StatusSynced])
	assert.True(t, status.Sync.IsOnline)

	out, code = e.run(t, "feed", "--cached")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, obs.ID)
}

func TestSync_RegistryFailureIsRecorded(t *testing.T) {
	e := newEnv(t)
	obs := e.submit(t, "--title", "outage")
	e.reg.FailNext(http.StatusInternalServerError)

	out, code := e.run(t, "sync", "--format", "json")
	require.Equal(t, ExitSuccess, code)
	var drain drainView
	decode(t, out, &drain)
	assert.Equal(t, 1, drain.Result.Retried)
	assert.Equal(t, 1, drain.Queue)

	out, code = e.run(t, "audit", "--format", "json")
	require.Equal(t, ExitSuccess, code)
	var audit []model.AuditEntry
	decode(t, out, &audit)
	require.NotEmpty(t, audit)
	assert.Equal(t, model.EventSyncRetry, audit[0].Event)
	assert.Equal(t, model.SeverityWarning, audit[0].Severity)
	assert.Equal(t, obs.ID, audit[0].Metadata["id"])
}

func TestSync_Offline(t *testing.T) {
	e := newEnv(t)
	e.submit(t, "--title", "no signal")
	e.reg.SetHealthy(false)

	out, code := e.run(t, "sync")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Sync skipped: offline (1 pending)")
}

func TestAudit_Text(t *testing.T) {
	e := newEnv(t)
	_, code := e.run(t, "init")
	require.Equal(t, ExitSuccess, code)
	e.submit(t, "--title", "a")

	out, code := e.run(t, "audit")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, model.EventIdentityCreated)
	assert.Contains(t, out, model.EventObservationCreated)
}

func TestPurge(t *testing.T) {
	e := newEnv(t)
	obs := e.submit(t, "--title", "mistake")

	_, code := e.run(t, "purge", obs.ID)
	require.Equal(t, ExitSuccess, code)

	_, code = e.run(t, "purge", obs.ID)
	assert.Equal(t, ExitFailure, code)
}

func TestWipe(t *testing.T) {
	e := newEnv(t)
	e.submit(t, "--title", "doomed")

	_, code := e.run(t, "wipe")
	assert.Equal(t, ExitCommandError, code)
	_, err := os.Stat(e.db)
	require.NoError(t, err)

	_, code = e.run(t, "wipe", "--yes")
	require.Equal(t, ExitSuccess, code)
	_, err = os.Stat(e.db)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMetrics(t *testing.T) {
	e := newEnv(t)
	e.submit(t, "--title", "one")
	e.submit(t, "--title", "two")

	out, code := e.run(t, "metrics")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "fieldnode_outbox_depth 2")
}

func TestRun_DrainsUntilCancelled(t *testing.T) {
	e := newEnv(t)
	e.submit(t, "--title", "queued")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, code := e.runContext(t, ctx, "run")
	assert.Equal(t, ExitSuccess, code)
	assert.Len(t, e.reg.Submissions(), 1)
}

func TestStatusRouter(t *testing.T) {
	e := newEnv(t)
	e.submit(t, "--title", "one")

	cfg := config.Default()
	cfg.DB = e.db
	cfg.RegistryURL = e.url
	a, err := openApp(context.Background(), cfg, false)
	require.NoError(t, err)
	defer a.Close()
	a.metrics.IncrementCreated()

	srv := httptest.NewServer(statusRouter(a.node, a.registry))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status syncer.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, 1, status.QueueSize)

	mresp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	assert.Equal(t, http.StatusOK, mresp.StatusCode)
}

func TestOpenApp_RequireIdentity(t *testing.T) {
	cfg := config.Default()
	cfg.DB = t.TempDir() + "/node.db"

	_, err := openApp(context.Background(), cfg, true)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, model.ErrNoIdentity)
}
