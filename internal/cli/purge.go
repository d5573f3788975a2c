package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldnode/internal/model"
)

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <id>",
		Short: "Delete one local observation",
		Long: `Delete an observation and its pending outbox entry, if any. Copies
already accepted by the registry are not affected.

Example:
  fieldnode purge 6f1c2a4e-8d1b-4c1e-9a51-3f0b8e2d7c10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, rootOpts.Config, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.node.Purge(ctx, args[0]); err != nil {
				if errors.Is(err, model.ErrNotFound) {
					return NewExitError(ExitFailure, "observation "+args[0]+" not found")
				}
				return WrapExitError(ExitCommandError, "failed to purge observation", err)
			}
			return rootOpts.formatter(cmd).Success(messageView{Message: "Purged " + args[0], ID: args[0]})
		},
	}
}

// NewWipeCommand creates the wipe command.
func NewWipeCommand(rootOpts *RootOptions) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Irreversibly destroy the local store and identity",
		Long: `Delete the database files, every observation, the outbox, the audit
log and the node identity. Unsynced observations are lost.

Example:
  fieldnode wipe --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return NewExitError(ExitCommandError, "refusing to wipe without --yes")
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, rootOpts.Config, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.node.WipeSession(ctx); err != nil {
				return WrapExitError(ExitFailure, "wipe failed", err)
			}
			return rootOpts.formatter(cmd).Success(messageView{Message: "Session wiped: " + rootOpts.Config.DB})
		},
	}

	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the wipe")
	return cmd
}
