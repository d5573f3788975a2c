package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldnode/internal/model"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync status",
		Long: `Show the outbox size, registry reachability and observation counts.

Example:
  fieldnode status
  fieldnode status --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, rootOpts.Config, false)
			if err != nil {
				return err
			}
			defer a.Close()

			counts, err := a.store.StatusCounts(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read observations", err)
			}
			view := statusView{
				NodeID: a.identity.NodeID(),
				Sync:   a.node.SyncStatus(ctx),
				Counts: counts,
			}
			return rootOpts.formatter(cmd).Success(view)
		},
	}
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Limit  int
	Outbox bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list [id]",
		Short: "List local observations",
		Long: `List local observations newest first, show one by id, or list the
outbox in drain order with --outbox.

Example:
  fieldnode list --limit 10
  fieldnode list 6f1c2a4e-8d1b-4c1e-9a51-3f0b8e2d7c10
  fieldnode list --outbox`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts.Config, false)
			if err != nil {
				return err
			}
			defer a.Close()
			out := opts.formatter(cmd)

			switch {
			case len(args) == 1:
				obs, err := a.node.Observation(ctx, args[0])
				if errors.Is(err, model.ErrNotFound) {
					return NewExitError(ExitFailure, "observation "+args[0]+" not found")
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read observation", err)
				}
				return out.Success(observationView{Observation: obs})
			case opts.Outbox:
				entries, err := a.node.Outbox(ctx, opts.Limit)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read outbox", err)
				}
				return out.Success(outboxList(entries))
			default:
				obs, err := a.node.Observations(ctx, opts.Limit)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read observations", err)
				}
				return out.Success(observationList(obs))
			}
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum entries (0 for all)")
	cmd.Flags().BoolVar(&opts.Outbox, "outbox", false, "list pending outbox entries instead")

	return cmd
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log",
		Long: `Show audit entries newest first. Entries older than the configured
audit_max_age are removed by the retention sweep in 'run'.

Example:
  fieldnode audit --limit 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, rootOpts.Config, false)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.node.AuditLog(ctx, limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read audit log", err)
			}
			return rootOpts.formatter(cmd).Success(auditList(entries))
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum entries (0 for all)")
	return cmd
}
