// Package config loads node configuration with Viper. Sources, lowest
// precedence first: defaults, an optional YAML file, FIELDNODE_* environment
// variables, and command-line flags bound by the CLI.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/fieldnode/internal/masking"
	"github.com/roach88/fieldnode/internal/registry"
	"github.com/roach88/fieldnode/internal/retention"
	"github.com/roach88/fieldnode/internal/syncer"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. FIELDNODE_REGISTRY_URL.
const EnvPrefix = "FIELDNODE"

// Keys.
const (
	KeyDB             = "db"
	KeyRegistryURL    = "registry_url"
	KeyRequestTimeout = "request_timeout"
	KeyBatchSize      = "batch_size"
	KeyMaxRetries     = "max_retries"
	KeyCooldown       = "cooldown"
	KeyDebounce       = "debounce"
	KeySuccessWindow  = "success_window"
	KeyPollInterval   = "poll_interval"
	KeyAuditMaxAge    = "audit_max_age"
	KeyFeedCacheCap   = "feed_cache_cap"
	KeyPruneInterval  = "prune_interval"
	KeyResidencySalt  = "residency_salt"
	KeyHomeLat        = "home_lat"
	KeyHomeLon        = "home_lon"
	KeyMetricsAddr    = "metrics_addr"
)

// Config is the resolved node configuration.
type Config struct {
	DB             string        `mapstructure:"db" json:"db" yaml:"db"`
	RegistryURL    string        `mapstructure:"registry_url" json:"registryUrl" yaml:"registry_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"requestTimeout" yaml:"request_timeout"`

	BatchSize     int           `mapstructure:"batch_size" json:"batchSize" yaml:"batch_size"`
	MaxRetries    int           `mapstructure:"max_retries" json:"maxRetries" yaml:"max_retries"`
	Cooldown      time.Duration `mapstructure:"cooldown" json:"cooldown" yaml:"cooldown"`
	Debounce      time.Duration `mapstructure:"debounce" json:"debounce" yaml:"debounce"`
	SuccessWindow time.Duration `mapstructure:"success_window" json:"successWindow" yaml:"success_window"`
	PollInterval  time.Duration `mapstructure:"poll_interval" json:"pollInterval" yaml:"poll_interval"`

	AuditMaxAge   time.Duration `mapstructure:"audit_max_age" json:"auditMaxAge" yaml:"audit_max_age"`
	FeedCacheCap  int           `mapstructure:"feed_cache_cap" json:"feedCacheCap" yaml:"feed_cache_cap"`
	PruneInterval time.Duration `mapstructure:"prune_interval" json:"pruneInterval" yaml:"prune_interval"`

	ResidencySalt string  `mapstructure:"residency_salt" json:"-" yaml:"-"`
	HomeLat       float64 `mapstructure:"home_lat" json:"homeLat" yaml:"home_lat"`
	HomeLon       float64 `mapstructure:"home_lon" json:"homeLon" yaml:"home_lon"`

	// MetricsAddr serves /metrics during `run` when non-empty.
	MetricsAddr string `mapstructure:"metrics_addr" json:"metricsAddr,omitempty" yaml:"metrics_addr,omitempty"`
}

// NewViper returns a Viper instance with defaults set and the environment
// bound.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyDB, "fieldnode.db")
	v.SetDefault(KeyRegistryURL, "http://localhost:8787")
	v.SetDefault(KeyRequestTimeout, registry.DefaultTimeout)
	v.SetDefault(KeyBatchSize, syncer.DefaultBatchSize)
	v.SetDefault(KeyMaxRetries, syncer.DefaultMaxRetries)
	v.SetDefault(KeyCooldown, syncer.DefaultCooldown)
	v.SetDefault(KeyDebounce, syncer.DefaultDebounce)
	v.SetDefault(KeySuccessWindow, syncer.DefaultSuccessWindow)
	v.SetDefault(KeyPollInterval, syncer.DefaultPollInterval)
	v.SetDefault(KeyAuditMaxAge, retention.DefaultAuditMaxAge)
	v.SetDefault(KeyFeedCacheCap, retention.DefaultFeedCap)
	v.SetDefault(KeyPruneInterval, retention.DefaultInterval)
	v.SetDefault(KeyResidencySalt, masking.DefaultSalt)
	v.SetDefault(KeyHomeLat, 0.0)
	v.SetDefault(KeyHomeLon, 0.0)
	v.SetDefault(KeyMetricsAddr, "")

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// Load reads configFile (YAML) when non-empty, then resolves and validates
// the configuration held by v.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every key at its default.
func Default() *Config {
	cfg, err := Load(NewViper(), "")
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Validate checks ranges and the registry URL.
func (c *Config) Validate() error {
	var errs []error
	if c.DB == "" {
		errs = append(errs, errors.New("db must be set"))
	}
	if u, err := url.Parse(c.RegistryURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("registry_url %q must be an absolute http(s) URL", c.RegistryURL))
	}
	if c.BatchSize < 1 {
		errs = append(errs, errors.New("batch_size must be at least 1"))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, errors.New("max_retries must be at least 1"))
	}
	if c.FeedCacheCap < 1 {
		errs = append(errs, errors.New("feed_cache_cap must be at least 1"))
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{KeyRequestTimeout, c.RequestTimeout},
		{KeyCooldown, c.Cooldown},
		{KeyDebounce, c.Debounce},
		{KeySuccessWindow, c.SuccessWindow},
		{KeyPollInterval, c.PollInterval},
		{KeyAuditMaxAge, c.AuditMaxAge},
		{KeyPruneInterval, c.PruneInterval},
	} {
		if d.val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.key, d.val))
		}
	}
	if !c.Home().Valid() {
		errs = append(errs, fmt.Errorf("home_lat/home_lon (%v, %v) out of range", c.HomeLat, c.HomeLon))
	}
	if c.ResidencySalt == "" {
		errs = append(errs, errors.New("residency_salt must be set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Sync returns the drain policy.
func (c *Config) Sync() syncer.Config {
	return syncer.Config{
		BatchSize:     c.BatchSize,
		MaxRetries:    c.MaxRetries,
		Cooldown:      c.Cooldown,
		Debounce:      c.Debounce,
		SuccessWindow: c.SuccessWindow,
		PollInterval:  c.PollInterval,
	}
}

// Retention returns the pruning policy.
func (c *Config) Retention() retention.Config {
	return retention.Config{
		AuditMaxAge: c.AuditMaxAge,
		FeedCap:     c.FeedCacheCap,
		Interval:    c.PruneInterval,
	}
}

// Home returns the default ingress location.
func (c *Config) Home() masking.Point {
	return masking.Point{Lat: c.HomeLat, Lon: c.HomeLon}
}
