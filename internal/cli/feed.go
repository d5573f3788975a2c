package cli

import (
	"github.com/spf13/cobra"
)

// NewFeedCommand creates the feed command.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		limit  int
		cached bool
	)

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Fetch and show the registry feed",
		Long: `Fetch the registry's reports, cache them locally, and show them newest
first. Local observations that appear in the feed are marked SYNCED.

With --cached the local cache is shown without contacting the registry.

Example:
  fieldnode feed --limit 10
  fieldnode feed --cached`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, rootOpts.Config, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var view feedView
			if !cached {
				res, err := a.node.RefreshFeed(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to refresh feed", err)
				}
				view.Refresh = &res
			}
			view.Reports, err = a.node.Feed(ctx, limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read feed cache", err)
			}
			return rootOpts.formatter(cmd).Success(view)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum reports (0 for all)")
	cmd.Flags().BoolVar(&cached, "cached", false, "show the local cache without fetching")
	return cmd
}
