package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/fieldnode/internal/config"
	"github.com/roach88/fieldnode/internal/identity"
	"github.com/roach88/fieldnode/internal/metrics"
	"github.com/roach88/fieldnode/internal/model"
	"github.com/roach88/fieldnode/internal/node"
	"github.com/roach88/fieldnode/internal/registry"
	"github.com/roach88/fieldnode/internal/retention"
	"github.com/roach88/fieldnode/internal/store"
	"github.com/roach88/fieldnode/internal/syncer"
)

// app is a fully wired node opened for one command.
type app struct {
	cfg      *config.Config
	store    *store.Store
	identity *identity.Manager
	client   *registry.Client
	engine   *syncer.Engine
	sweeper  *retention.Sweeper
	node     *node.Node
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// openApp opens the store and wires every component from cfg.
// When requireIdentity is set, a missing identity is a command error.
func openApp(ctx context.Context, cfg *config.Config, requireIdentity bool) (*app, error) {
	logger := slog.Default()

	st, err := store.Open(cfg.DB, store.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	ident := identity.New(st, identity.WithLogger(logger))
	if _, err := ident.Load(ctx); err != nil {
		if !errors.Is(err, model.ErrNoIdentity) || requireIdentity {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to load identity", err)
		}
	}

	client, err := registry.New(cfg.RegistryURL,
		registry.WithTimeout(cfg.RequestTimeout),
		registry.WithSigner(ident),
		registry.WithLogger(logger),
	)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "invalid registry URL", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	probe := syncer.NewHealthProbe(client, nil, 0)
	engine := syncer.New(st, client, probe,
		syncer.WithConfig(cfg.Sync()),
		syncer.WithLogger(logger),
		syncer.WithMetrics(m),
	)

	return &app{
		cfg:      cfg,
		store:    st,
		identity: ident,
		client:   client,
		engine:   engine,
		sweeper: retention.New(st,
			retention.WithConfig(cfg.Retention()),
			retention.WithLogger(logger),
			retention.WithMetrics(m),
		),
		node: node.New(st, ident, engine, client,
			node.WithSalt(cfg.ResidencySalt),
			node.WithHome(cfg.Home()),
			node.WithLogger(logger),
			node.WithMetrics(m),
		),
		registry: reg,
		metrics:  m,
	}, nil
}

// Close stops the engine and closes the store. Safe after a wipe.
func (a *app) Close() {
	a.engine.Stop()
	a.engine.Wait()
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
