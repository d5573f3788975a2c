package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/fieldnode/internal/syncer"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one drain cycle",
		Long: `Submit the next batch of outbox entries to the registry.

One cycle sends at most batch_size entries. Failed entries stay queued
until they reach max_retries, after which they are marked FAILED.

Example:
  fieldnode sync --registry http://localhost:8787`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, rootOpts.Config, false)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.node.Sync(ctx)
			if res.Skipped == syncer.SkipError {
				return NewExitError(ExitCommandError, "sync failed: outbox unreadable")
			}
			queue, err := a.store.OutboxSize(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read outbox", err)
			}
			return rootOpts.formatter(cmd).Success(drainView{Result: res, Queue: queue})
		},
	}
}
