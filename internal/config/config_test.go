package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldnode/internal/masking"
	"github.com/roach88/fieldnode/internal/retention"
	"github.com/roach88/fieldnode/internal/syncer"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, "fieldnode.db", cfg.DB)
	assert.Equal(t, "http://localhost:8787", cfg.RegistryURL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, syncer.DefaultConfig(), cfg.Sync())
	assert.Equal(t, retention.DefaultConfig(), cfg.Retention())
	assert.Equal(t, masking.DefaultSalt, cfg.ResidencySalt)
	assert.Equal(t, masking.Point{}, cfg.Home())
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("FIELDNODE_REGISTRY_URL", "https://registry.example.org")
	t.Setenv("FIELDNODE_BATCH_SIZE", "10")
	t.Setenv("FIELDNODE_COOLDOWN", "1m")
	t.Setenv("FIELDNODE_HOME_LAT", "39.9526")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, "https://registry.example.org", cfg.RegistryURL)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, time.Minute, cfg.Cooldown)
	assert.InDelta(t, 39.9526, cfg.HomeLat, 1e-9)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldnode.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db: /var/lib/fieldnode/node.db
max_retries: 3
debounce: 500ms
feed_cache_cap: 50
home_lat: 42.36
home_lon: -71.06
`), 0o600))

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/fieldnode/node.db", cfg.DB)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 50, cfg.FeedCacheCap)
	assert.Equal(t, masking.Point{Lat: 42.36, Lon: -71.06}, cfg.Home())
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldnode.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 2\n"), 0o600))
	t.Setenv("FIELDNODE_BATCH_SIZE", "7")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.BatchSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		want  string
	}{
		{"batch size", KeyBatchSize, 0, "batch_size"},
		{"retries", KeyMaxRetries, 0, "max_retries"},
		{"cooldown", KeyCooldown, "-1s", "cooldown"},
		{"timeout", KeyRequestTimeout, "0s", "request_timeout"},
		{"registry scheme", KeyRegistryURL, "ftp://registry", "registry_url"},
		{"registry relative", KeyRegistryURL, "/reports", "registry_url"},
		{"feed cap", KeyFeedCacheCap, 0, "feed_cache_cap"},
		{"home", KeyHomeLat, 91.0, "home_lat"},
		{"db", KeyDB, "", "db must be set"},
		{"salt", KeyResidencySalt, "", "residency_salt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewViper()
			v.Set(tt.key, tt.value)

			_, err := Load(v, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDefault(t *testing.T) {
	assert.Equal(t, syncer.DefaultBatchSize, Default().BatchSize)
}
