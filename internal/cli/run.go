package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/fieldnode/internal/model"
	"github.com/roach88/fieldnode/internal/node"
	"github.com/roach88/fieldnode/internal/store"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync engine and retention sweep",
		Long: `Run the node until interrupted.

The sync engine drains the outbox every poll_interval when the registry
is reachable. The retention sweep prunes the audit log and feed cache
every prune_interval. With --metrics-addr, Prometheus metrics are served
on /metrics and the sync status on /status.

Example:
  fieldnode run --db ./node.db --registry http://localhost:8787
  fieldnode run --metrics-addr :9090 --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(cmd, rootOpts)
		},
	}

	cmd.Flags().String("metrics-addr", "", "address to serve /metrics and /status on")
	return cmd
}

func runNode(cmd *cobra.Command, opts *RootOptions) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := openApp(ctx, opts.Config, false)
	if err != nil {
		return err
	}
	defer a.Close()

	id, created, err := a.identity.Ensure(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to ensure identity", err)
	}
	slog.Info("node ready", "node_id", id.NodeID, "created", created, "db", opts.Config.DB, "registry", opts.Config.RegistryURL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.engine.Run(gctx) })
	g.Go(func() error { return a.sweeper.Run(gctx) })
	g.Go(func() error { return trackOutboxDepth(gctx, a) })
	if addr := opts.Config.MetricsAddr; addr != "" {
		g.Go(func() error { return serveHTTP(gctx, addr, statusRouter(a.node, a.registry)) })
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Node running. Press Ctrl-C to stop.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "node error", err)
	}

	slog.Info("node stopped gracefully")
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// trackOutboxDepth keeps the outbox gauge current between drains.
func trackOutboxDepth(ctx context.Context, a *app) error {
	changes, unsubscribe := a.store.Subscribe(store.FamilyOutbox)
	defer unsubscribe()

	update := func() {
		n, err := a.store.OutboxSize(ctx)
		if err != nil {
			if !errors.Is(err, model.ErrStoreClosed) {
				slog.Warn("outbox depth unavailable", "error", err)
			}
			return
		}
		a.metrics.SetOutboxDepth(n)
	}

	update()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			update()
		}
	}
}

// statusRouter serves Prometheus metrics and the sync status.
func statusRouter(n *node.Node, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(n.SyncStatus(req.Context())); err != nil {
			slog.Warn("status: encode response", "error", err)
		}
	})
	return r
}

// serveHTTP serves h on addr until ctx is cancelled.
func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown %s: %w", addr, err)
		}
		return ctx.Err()
	}
}
