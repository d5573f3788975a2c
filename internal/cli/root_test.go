package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldnode/internal/model"
	"github.com/roach88/fieldnode/internal/registry/registrytest"
)

// env is an isolated database plus an in-memory registry.
type env struct {
	db  string
	reg *registrytest.Registry
	url string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	reg := registrytest.New()
	srv := registrytest.NewServer(t, reg)
	return &env{db: filepath.Join(t.TempDir(), "node.db"), reg: reg, url: srv.URL}
}

// run executes the CLI against e and returns stdout and the exit code.
func (e *env) run(t *testing.T, args ...string) (string, int) {
	t.Helper()
	return e.runContext(t, context.Background(), args...)
}

func (e *env) runContext(t *testing.T, ctx context.Context, args ...string) (string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--db", e.db, "--registry", e.url}, args...)
	code := Execute(ctx, full, &stdout, &stderr)
	if code != ExitSuccess {
		t.Logf("stderr: %s", stderr.String())
	}
	return stdout.String(), code
}

type response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// decode parses a JSON CLI response and unmarshals its data into v.
func decode(t *testing.T, out string, v any) response {
	t.Helper()
	var resp response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	if v != nil && resp.Data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, v))
	}
	return resp
}

func (e *env) submit(t *testing.T, args ...string) model.Observation {
	t.Helper()
	out, code := e.run(t, append([]string{"submit", "--format", "json"}, args...)...)
	require.Equal(t, ExitSuccess, code, out)
	var obs model.Observation
	decode(t, out, &obs)
	return obs
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "fieldnode", cmd.Use)
	assert.Contains(t, cmd.Long, "local-first")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"init", "submit", "status", "list", "audit", "sync", "run", "feed", "purge", "wipe", "registry", "metrics"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "db", "registry"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	e := newEnv(t)
	_, code := e.run(t, "status", "--format", "xml")
	assert.Equal(t, ExitCommandError, code)
}

func TestUnknownFlag(t *testing.T) {
	e := newEnv(t)
	_, code := e.run(t, "status", "--bogus")
	assert.Equal(t, ExitCommandError, code)
}

func TestInvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"--registry", "ftp://registry", "--db", filepath.Join(t.TempDir(), "x.db"), "status"}, &stdout, &stderr)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr.String(), "registry_url")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "from-file.db")
	cfgPath := filepath.Join(dir, "fieldnode.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("db: "+dbPath+"\n"), 0o600))

	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"--config", cfgPath, "init"}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())

	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestStructuredErrorOutput(t *testing.T) {
	e := newEnv(t)
	out, code := e.run(t, "purge", "00000000-0000-4000-8000-000000000001", "--format", "json")
	assert.Equal(t, ExitFailure, code)

	resp := decode(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E001", resp.Error.Code)
	assert.True(t, strings.Contains(resp.Error.Message, "not found"))
}
