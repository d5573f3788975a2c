package cli

import (
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

// NewMetricsCommand creates the metrics command.
func NewMetricsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print node metrics in Prometheus text format",
		Long: `Print a snapshot of the node's metrics in the Prometheus text
exposition format. Counters start at zero in each process; use
'run --metrics-addr' to scrape a long-running node.

Example:
  fieldnode metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, rootOpts.Config, false)
			if err != nil {
				return err
			}
			defer a.Close()

			depth, err := a.store.OutboxSize(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read outbox", err)
			}
			a.metrics.SetOutboxDepth(depth)

			families, err := a.registry.Gather()
			if err != nil {
				return WrapExitError(ExitFailure, "failed to gather metrics", err)
			}
			enc := expfmt.NewEncoder(cmd.OutOrStdout(), expfmt.NewFormat(expfmt.TypeTextPlain))
			for _, mf := range families {
				if err := enc.Encode(mf); err != nil {
					return WrapExitError(ExitFailure, "failed to encode metrics", err)
				}
			}
			return nil
		},
	}
}
