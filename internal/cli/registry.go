package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldnode/internal/registry/registrytest"
)

// NewRegistryCommand creates the registry command.
func NewRegistryCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Serve an in-memory registry for local development",
		Long: `Serve POST /reports, GET /reports and GET /health from memory.

Submissions are validated against the report schema. Nothing is
persisted; reports are lost on exit.

Example:
  fieldnode registry --addr :8787`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			reg := registrytest.New(registrytest.WithLogger(slog.Default()))
			fmt.Fprintf(cmd.OutOrStdout(), "Registry listening on %s. Press Ctrl-C to stop.\n", addr)

			if err := serveHTTP(ctx, addr, reg.Handler()); err != nil && !errors.Is(err, context.Canceled) {
				return WrapExitError(ExitFailure, "registry error", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8787", "listen address")
	return cmd
}
